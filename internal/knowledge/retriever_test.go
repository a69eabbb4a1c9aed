package knowledge

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/policyqa-go/internal/errors"
)

// stubEmbedder 按预置表返回向量的测试桩
type stubEmbedder struct {
	dims    int
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return v, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Ready() bool     { return true }

func TestRetrieverEmptyQuery(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	retriever := NewRetriever(&stubEmbedder{dims: 2}, store, 5, 200)

	_, err = retriever.Retrieve(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func TestRetrieverEmptyIndex(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{
		"anything": {1, 0},
	}}
	retriever := NewRetriever(embedder, store, 5, 200)

	results, err := retriever.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieverDedupAdjacentChunks(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	// doc1的序号0和1是重叠相邻块，向量也相近
	chunks1 := []Chunk{
		{ChunkID: "doc1_0", DocumentID: "doc1", Filename: "a.txt", Text: "chunk zero", SequenceIndex: 0},
		{ChunkID: "doc1_1", DocumentID: "doc1", Filename: "a.txt", Text: "chunk one", SequenceIndex: 1},
		{ChunkID: "doc1_3", DocumentID: "doc1", Filename: "a.txt", Text: "chunk three", SequenceIndex: 3},
	}
	require.NoError(t, store.UpsertDocument(ctx, "doc1", chunks1, [][]float32{
		{1, 0},
		{0.9, 0.436},
		{0.8, 0.6},
	}))
	require.NoError(t, store.UpsertDocument(ctx, "doc2", []Chunk{
		{ChunkID: "doc2_0", DocumentID: "doc2", Filename: "b.txt", Text: "other doc", SequenceIndex: 0},
	}, [][]float32{{0.7, 0.714}}))

	embedder := &stubEmbedder{dims: 2, vectors: map[string][]float32{
		"query": {1, 0},
	}}
	retriever := NewRetriever(embedder, store, 5, 200)

	results, err := retriever.Retrieve(ctx, "query")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// doc1_1与doc1_0相邻且分数更低，被去重
	assert.Equal(t, "doc1_0", results[0].Chunk.ChunkID)
	assert.Equal(t, "doc1_3", results[1].Chunk.ChunkID)
	assert.Equal(t, "doc2_0", results[2].Chunk.ChunkID)

	// 排名从1开始连续，相似度降序
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 {
			assert.LessOrEqual(t, r.Similarity, results[i-1].Similarity)
		}
	}
}

func TestDedupAdjacentChunksKeepsHigherScore(t *testing.T) {
	matches := []SearchMatch{
		{Chunk: Chunk{ChunkID: "d_1", DocumentID: "d", SequenceIndex: 1}, Score: 0.9},
		{Chunk: Chunk{ChunkID: "d_2", DocumentID: "d", SequenceIndex: 2}, Score: 0.8},
		{Chunk: Chunk{ChunkID: "d_5", DocumentID: "d", SequenceIndex: 5}, Score: 0.7},
	}
	kept := dedupAdjacentChunks(matches)
	require.Len(t, kept, 2)
	assert.Equal(t, "d_1", kept[0].Chunk.ChunkID)
	assert.Equal(t, "d_5", kept[1].Chunk.ChunkID)
}

func TestFormatContext(t *testing.T) {
	retriever := NewRetriever(&stubEmbedder{dims: 2}, nil, 5, 200)

	chunks := []RetrievedChunk{
		{Chunk: Chunk{Filename: "handbook.pdf", PageNumber: 3, SequenceIndex: 7, Text: "First passage."}, Rank: 1},
		{Chunk: Chunk{Filename: "rules.docx", PageNumber: 1, SequenceIndex: 0, Text: "Second passage."}, Rank: 2},
	}
	formatted := retriever.FormatContext(chunks)

	assert.Contains(t, formatted, "[DOC: handbook.pdf | page: 3 | paragraph: 7]\nFirst passage.")
	assert.Contains(t, formatted, "[DOC: rules.docx | page: 1 | paragraph: 0]\nSecond passage.")
	// 按排名顺序出现
	assert.Less(t,
		strings.Index(formatted, "handbook.pdf"),
		strings.Index(formatted, "rules.docx"))

	assert.Equal(t, "", retriever.FormatContext(nil))
}

func TestGetCitations(t *testing.T) {
	retriever := NewRetriever(&stubEmbedder{dims: 2}, nil, 5, 50)

	longText := strings.Repeat("policy word ", 30)
	chunks := []RetrievedChunk{
		{Chunk: Chunk{Filename: "a.pdf", PageNumber: 2, Text: longText}},
		{Chunk: Chunk{Filename: "b.pdf", PageNumber: 5, Text: "short"}},
		{Chunk: Chunk{Filename: "c.pdf", PageNumber: 1, Text: "also short"}},
		{Chunk: Chunk{Filename: "d.pdf", PageNumber: 9, Text: "ignored"}},
	}

	citations := retriever.GetCitations(chunks, 3)
	require.Len(t, citations, 3)
	assert.Equal(t, "a.pdf", citations[0].Filename)
	assert.Equal(t, 2, citations[0].PageNumber)

	// 长文本被截断并以省略号结尾，不在词中间切断
	snippet := citations[0].TextSnippet
	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.LessOrEqual(t, len([]rune(snippet)), 53)
	body := strings.TrimSuffix(snippet, "...")
	assert.True(t, strings.HasSuffix(body, "policy") || strings.HasSuffix(body, "word"))

	// 短文本原样保留
	assert.Equal(t, "short", citations[1].TextSnippet)
}

func TestTruncateSnippet(t *testing.T) {
	assert.Equal(t, "hello", truncateSnippet("  hello  ", 10))

	long := strings.Repeat("abcde ", 50)
	got := truncateSnippet(long, 100)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), 103)

	// 没有空白可回退时直接硬切
	noSpace := strings.Repeat("x", 300)
	got = truncateSnippet(noSpace, 100)
	assert.Equal(t, strings.Repeat("x", 100)+"...", got)
}
