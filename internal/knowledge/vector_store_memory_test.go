package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(documentID string, seq int, text string) Chunk {
	return Chunk{
		ChunkID:       documentID + "_" + string(rune('0'+seq)),
		DocumentID:    documentID,
		Filename:      documentID + ".txt",
		Text:          text,
		SequenceIndex: seq,
	}
}

func TestMemoryVectorStoreInvalidDimension(t *testing.T) {
	_, err := NewMemoryVectorStore(0)
	assert.Error(t, err)

	_, err = NewMemoryVectorStore(-1)
	assert.Error(t, err)
}

func TestMemoryVectorStoreRejectsDimensionMismatch(t *testing.T) {
	store, err := NewMemoryVectorStore(3)
	require.NoError(t, err)
	ctx := context.Background()

	err = store.UpsertDocument(ctx, "doc1",
		[]Chunk{testChunk("doc1", 0, "text")},
		[][]float32{{1, 0}})
	assert.Error(t, err)

	// 失败的写入不应留下任何数据
	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = store.Search(ctx, []float32{1, 0}, 5)
	assert.Error(t, err)
}

func TestMemoryVectorStoreSelfRetrieval(t *testing.T) {
	store, err := NewMemoryVectorStore(3)
	require.NoError(t, err)
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	chunks := []Chunk{
		testChunk("doc1", 0, "alpha"),
		testChunk("doc1", 1, "beta"),
		testChunk("doc1", 2, "gamma"),
	}
	require.NoError(t, store.UpsertDocument(ctx, "doc1", chunks, vectors))

	// 每个向量都应检索回自己的分块
	for i, v := range vectors {
		matches, err := store.Search(ctx, v, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, chunks[i].ChunkID, matches[0].Chunk.ChunkID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	}
}

func TestMemoryVectorStoreTopKTruncation(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocument(ctx, "doc1",
		[]Chunk{
			testChunk("doc1", 0, "a"),
			testChunk("doc1", 1, "b"),
			testChunk("doc1", 2, "c"),
		},
		[][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}))

	matches, err := store.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// 按相似度降序
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestMemoryVectorStoreScoreTieBreak(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	// 两个文档各一个分块，向量相同，分数必然相同
	require.NoError(t, store.UpsertDocument(ctx, "docB",
		[]Chunk{testChunk("docB", 0, "same")}, [][]float32{{1, 0}}))
	require.NoError(t, store.UpsertDocument(ctx, "docA",
		[]Chunk{testChunk("docA", 0, "same")}, [][]float32{{1, 0}}))

	matches, err := store.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// 同分时按文档ID字典序，保证结果确定
	assert.Equal(t, "docA", matches[0].Chunk.DocumentID)
	assert.Equal(t, "docB", matches[1].Chunk.DocumentID)
}

func TestMemoryVectorStoreReingestReplaces(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocument(ctx, "doc1",
		[]Chunk{
			testChunk("doc1", 0, "old a"),
			testChunk("doc1", 1, "old b"),
		},
		[][]float32{{1, 0}, {0, 1}}))

	// 重复摄取同一文档：旧分块全部被替换
	require.NoError(t, store.UpsertDocument(ctx, "doc1",
		[]Chunk{testChunk("doc1", 0, "new")},
		[][]float32{{0.5, 0.5}}))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].ChunkCount)

	matches, err := store.Search(ctx, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Chunk.Text)
}

func TestMemoryVectorStoreDeleteIdempotent(t *testing.T) {
	store, err := NewMemoryVectorStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocument(ctx, "doc1",
		[]Chunk{testChunk("doc1", 0, "text")}, [][]float32{{1, 0}}))

	require.NoError(t, store.DeleteDocument(ctx, "doc1"))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	matches, err := store.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// 再删一次仍然成功
	require.NoError(t, store.DeleteDocument(ctx, "doc1"))
	// 从未存在的文档同样幂等
	require.NoError(t, store.DeleteDocument(ctx, "ghost"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	// 零向量不参与相似度计算
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
