package knowledge

import (
	"context"
	"sort"
)

// SearchMatch 向量检索命中
type SearchMatch struct {
	Chunk Chunk
	Score float64
}

// VectorStore 向量存储抽象
//
// UpsertDocument对单个文档是原子的：要么全部分块可检索，要么全部不可见。
// DeleteDocument幂等，删除不存在的文档不报错。
type VectorStore interface {
	UpsertDocument(ctx context.Context, documentID string, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, topK int) ([]SearchMatch, error)
	DeleteDocument(ctx context.Context, documentID string) error
	ListDocuments(ctx context.Context) ([]DocumentSummary, error)
	Ready() bool
}

// sortMatchesByScore 按相似度降序排序
// 同分时先比sequence_index（小者在前）再比document_id，保证结果确定
func sortMatchesByScore(matches []SearchMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Chunk.SequenceIndex != matches[j].Chunk.SequenceIndex {
			return matches[i].Chunk.SequenceIndex < matches[j].Chunk.SequenceIndex
		}
		return matches[i].Chunk.DocumentID < matches[j].Chunk.DocumentID
	})
}
