package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/policyqa-go/internal/errors"
)

func TestChunkerEmptyDocument(t *testing.T) {
	chunker := NewChunker(512, 128)

	_, err := chunker.Chunk(Document{DocumentID: "doc1", RawText: ""})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeChunkingFailed))

	// 纯空白同样视为空文档
	_, err = chunker.Chunk(Document{DocumentID: "doc1", RawText: "   \n\n\t  "})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeChunkingFailed))
}

func TestChunkerSingleParagraph(t *testing.T) {
	chunker := NewChunker(512, 128)

	doc := Document{
		DocumentID: "doc1",
		Filename:   "policy.txt",
		RawText:    "Attendance is mandatory for all lab sessions.",
	}
	chunks, err := chunker.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "doc1_0", chunks[0].ChunkID)
	assert.Equal(t, "doc1", chunks[0].DocumentID)
	assert.Equal(t, "policy.txt", chunks[0].Filename)
	assert.Equal(t, 0, chunks[0].SequenceIndex)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, doc.RawText, chunks[0].Text)
	assert.Equal(t, 7, chunks[0].TokenCount)
}

// 覆盖性：overlap=0时所有分块的词序列拼起来等于归一化原文的词序列
func TestChunkerFullCoverage(t *testing.T) {
	chunker := NewChunker(20, 0)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("Paragraph text about policy rules and procedures for students.\n\n")
	}
	doc := Document{DocumentID: "doc1", RawText: sb.String()}

	chunks, err := chunker.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var got []string
	for _, c := range chunks {
		got = append(got, strings.Fields(c.Text)...)
	}
	want := strings.Fields(NormalizeText(doc.RawText))
	assert.Equal(t, want, got)

	// 序号连续且保持原文顺序
	for i, c := range chunks {
		assert.Equal(t, i, c.SequenceIndex)
	}
}

// 重叠：相邻分块共享结尾内容，且每块token数不超过预算（单个超长单元除外）
func TestChunkerOverlap(t *testing.T) {
	chunker := NewChunker(10, 5)

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("one two three four five. ")
	}
	doc := Document{DocumentID: "doc1", RawText: sb.String()}

	chunks, err := chunker.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		// 前一块的尾词出现在当前块的开头
		assert.Equal(t, prev[len(prev)-5:], cur[:5],
			"chunk %d should start with the overlap of chunk %d", i, i-1)
	}
}

func TestChunkerPageAttribution(t *testing.T) {
	page1 := "First page paragraph about enrollment."
	page2 := "Second page paragraph about tuition fees."
	page3 := "Third page paragraph about graduation requirements."
	text := page1 + "\n\n" + page2 + "\n\n" + page3

	pageMap := []int{
		0,
		len(page1) + 2,
		len(page1) + 2 + len(page2) + 2,
	}

	chunker := NewChunker(6, 0)
	chunks, err := chunker.Chunk(Document{DocumentID: "doc1", RawText: text, PageMap: pageMap})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[1].PageNumber)
	assert.Equal(t, 3, chunks[2].PageNumber)
}

// 没有任何句子边界的超长文本也必须能前进并完成分块
func TestChunkerLongTextWithoutPunctuation(t *testing.T) {
	words := make([]string, 500)
	for i := range words {
		words[i] = "word"
	}
	doc := Document{DocumentID: "doc1", RawText: strings.Join(words, " ")}

	chunker := NewChunker(50, 10)
	chunks, err := chunker.Chunk(doc)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 5)

	total := 0
	for _, c := range chunks {
		total += c.TokenCount
	}
	// 重叠会重复计数，至少覆盖全部500词
	assert.GreaterOrEqual(t, total, 500)
}

func TestPageForOffset(t *testing.T) {
	pageMap := []int{0, 100, 250}

	assert.Equal(t, 1, pageForOffset(pageMap, 0))
	assert.Equal(t, 1, pageForOffset(pageMap, 99))
	assert.Equal(t, 2, pageForOffset(pageMap, 100))
	assert.Equal(t, 2, pageForOffset(pageMap, 249))
	assert.Equal(t, 3, pageForOffset(pageMap, 250))
	assert.Equal(t, 3, pageForOffset(pageMap, 9999))
	// 无页表时统一归第1页
	assert.Equal(t, 1, pageForOffset(nil, 42))
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"CRLF换行", "a\r\nb", "a\nb"},
		{"连续空格压缩", "a    b", "a b"},
		{"制表符压缩", "a\t\tb", "a b"},
		{"段落边界保留", "para one\n\n\n\npara two", "para one\n\npara two"},
		{"首尾空白去除", "  \n hello \n ", "hello"},
		{"行首缩进去除", "line one\n    line two", "line one\nline two"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeText(tc.in))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 0, estimateTokens("   "))
	assert.Equal(t, 3, estimateTokens("one two three"))
	assert.Equal(t, 2, estimateTokens("  padded   words  "))
}
