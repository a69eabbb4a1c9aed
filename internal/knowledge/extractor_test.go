package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/policyqa-go/internal/errors"
)

func TestPlainTextExtract(t *testing.T) {
	manager := NewExtractorManager()

	result, err := manager.ExtractFile(
		strings.NewReader("Students must register before the deadline.\r\n\r\nLate registration requires approval."),
		"registration_policy.txt")
	require.NoError(t, err)
	assert.Equal(t, "text", result.DocumentType)
	assert.Equal(t, []int{0}, result.PageMap)
	// 换行符归一化，段落边界保留
	assert.Equal(t, "Students must register before the deadline.\n\nLate registration requires approval.", result.RawText)
}

func TestPlainTextExtractMarkdown(t *testing.T) {
	manager := NewExtractorManager()

	result, err := manager.ExtractFile(strings.NewReader("# Policy\n\nAll visitors must sign in."), "policy.md")
	require.NoError(t, err)
	assert.Equal(t, "text", result.DocumentType)
}

func TestExtractEmptyFile(t *testing.T) {
	manager := NewExtractorManager()

	_, err := manager.ExtractFile(strings.NewReader("   \n\t  "), "empty.txt")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExtractionFailed))
}

func TestExtractUnsupportedFormat(t *testing.T) {
	manager := NewExtractorManager()

	_, err := manager.ExtractFile(strings.NewReader("data"), "report.xlsx")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidFileFormat))
}

// 旧版.doc不支持，提示改用.docx
func TestExtractLegacyDocRejected(t *testing.T) {
	manager := NewExtractorManager()

	_, err := manager.ExtractFile(strings.NewReader("data"), "old_policy.doc")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidFileFormat))
	assert.Contains(t, err.Error(), ".docx")
}

func TestSupportedFormats(t *testing.T) {
	formats := NewExtractorManager().SupportedFormats()
	assert.Contains(t, formats, ".pdf")
	assert.Contains(t, formats, ".docx")
	assert.Contains(t, formats, ".txt")
}
