package knowledge

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/aihub/policyqa-go/internal/errors"
)

// ExtractResult 文本提取结果，RawText为归一化后文本，PageMap为每页起始偏移
type ExtractResult struct {
	RawText      string
	PageMap      []int
	DocumentType string
}

// TextExtractor 文本提取器接口
type TextExtractor interface {
	Extract(reader io.Reader, filename string) (*ExtractResult, error)
	Supports(filename string) bool
}

// PlainTextExtractor 纯文本提取器
type PlainTextExtractor struct{}

func (e *PlainTextExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

func (e *PlainTextExtractor) Parse(reader io.Reader) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return string(content), nil
}

func (e *PlainTextExtractor) Extract(reader io.Reader, filename string) (*ExtractResult, error) {
	raw, err := e.Parse(reader)
	if err != nil {
		return nil, errors.NewExtractionError("failed to read text file").WithCause(err)
	}
	normalized := NormalizeText(raw)
	if normalized == "" {
		return nil, errors.NewExtractionError("file contains no extractable text")
	}
	return &ExtractResult{
		RawText:      normalized,
		PageMap:      []int{0},
		DocumentType: "text",
	}, nil
}

// PDFExtractor PDF提取器，逐页提取并记录页偏移
type PDFExtractor struct{}

func (e *PDFExtractor) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (e *PDFExtractor) Extract(reader io.Reader, filename string) (*ExtractResult, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.NewExtractionError("failed to read PDF file").WithCause(err)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, errors.NewExtractionError("failed to parse PDF").WithCause(err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, errors.NewExtractionError("failed to get PDF page count").WithCause(err)
	}

	var sb strings.Builder
	pageMap := make([]int, 0, numPages)
	for i := 1; i <= numPages; i++ {
		// 提取失败的页记为空页，保留页号连续性
		pageText := ""
		if page, pageErr := pdfReader.GetPage(i); pageErr == nil {
			if ex, exErr := extractor.New(page); exErr == nil {
				if text, textErr := ex.ExtractText(); textErr == nil {
					pageText = NormalizeText(text)
				}
			}
		}
		if sb.Len() > 0 && pageText != "" {
			sb.WriteString("\n\n")
		}
		pageMap = append(pageMap, sb.Len())
		sb.WriteString(pageText)
	}

	rawText := sb.String()
	if strings.TrimSpace(rawText) == "" {
		return nil, errors.NewExtractionError("PDF contains no extractable text")
	}
	return &ExtractResult{
		RawText:      rawText,
		PageMap:      pageMap,
		DocumentType: "pdf",
	}, nil
}

// WordExtractor Word文档提取器，仅支持.docx
type WordExtractor struct{}

func (e *WordExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".docx" || ext == ".doc"
}

func (e *WordExtractor) Extract(reader io.Reader, filename string) (*ExtractResult, error) {
	if strings.ToLower(filepath.Ext(filename)) == ".doc" {
		return nil, errors.NewInvalidFileFormatError(".doc (legacy, use .docx)")
	}

	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.NewExtractionError("failed to read Word file").WithCause(err)
	}

	doc, err := document.Read(bytes.NewReader(docBytes), int64(len(docBytes)))
	if err != nil {
		return nil, errors.NewExtractionError("failed to parse Word document").WithCause(err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, para := range doc.Paragraphs() {
		var paraText strings.Builder
		for _, run := range para.Runs() {
			paraText.WriteString(run.Text())
		}
		text := strings.TrimSpace(paraText.String())
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	normalized := NormalizeText(sb.String())
	if normalized == "" {
		return nil, errors.NewExtractionError("Word document contains no extractable text")
	}
	return &ExtractResult{
		RawText:      normalized,
		PageMap:      []int{0},
		DocumentType: "docx",
	}, nil
}

// ExtractorManager 按扩展名分发的提取器管理器
type ExtractorManager struct {
	extractors []TextExtractor
}

// NewExtractorManager 创建提取器管理器
func NewExtractorManager() *ExtractorManager {
	return &ExtractorManager{
		extractors: []TextExtractor{
			&PDFExtractor{},
			&WordExtractor{},
			&PlainTextExtractor{},
		},
	}
}

// ExtractFile 提取文件文本，不支持的格式返回INVALID_FILE_FORMAT错误
func (m *ExtractorManager) ExtractFile(reader io.Reader, filename string) (*ExtractResult, error) {
	for _, ex := range m.extractors {
		if ex.Supports(filename) {
			return ex.Extract(reader, filename)
		}
	}
	return nil, errors.NewInvalidFileFormatError(filepath.Ext(filename))
}

// SupportedFormats 返回支持的扩展名
func (m *ExtractorManager) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".markdown"}
}
