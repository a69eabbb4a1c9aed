package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// memoryVectorStore 进程内暴力余弦检索存储
// 单锁保证文档级原子可见性：搜索不会看到插入了一半的文档
type memoryVectorStore struct {
	mu        sync.RWMutex
	dimension int
	documents map[string]*memoryDocument
}

type memoryDocument struct {
	chunks  []Chunk
	vectors [][]float32
}

// NewMemoryVectorStore 创建内存向量存储，维度在初始化时固定
func NewMemoryVectorStore(dimension int) (VectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", dimension)
	}
	return &memoryVectorStore{
		dimension: dimension,
		documents: make(map[string]*memoryDocument),
	}, nil
}

func (s *memoryVectorStore) UpsertDocument(ctx context.Context, documentID string, chunks []Chunk, vectors [][]float32) error {
	if documentID == "" {
		return fmt.Errorf("document id is empty")
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to upsert")
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	// 先校验再写入，保证失败时索引不变
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector %d dimension mismatch: got %d, index dimension is %d", i, len(v), s.dimension)
		}
	}

	stored := &memoryDocument{
		chunks:  make([]Chunk, len(chunks)),
		vectors: make([][]float32, len(vectors)),
	}
	copy(stored.chunks, chunks)
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		stored.vectors[i] = vec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 重复摄取同一文档时整体替换
	s.documents[documentID] = stored
	return nil
}

func (s *memoryVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]SearchMatch, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: got %d, index dimension is %d", len(queryVector), s.dimension)
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []SearchMatch
	for _, doc := range s.documents {
		for i, vec := range doc.vectors {
			matches = append(matches, SearchMatch{
				Chunk: doc.chunks[i],
				Score: cosineSimilarity(queryVector, vec),
			})
		}
	}

	sortMatchesByScore(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *memoryVectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// 幂等：不存在也不报错
	delete(s.documents, documentID)
	return nil
}

func (s *memoryVectorStore) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]DocumentSummary, 0, len(s.documents))
	for id, doc := range s.documents {
		summary := DocumentSummary{
			DocumentID: id,
			ChunkCount: len(doc.chunks),
		}
		if len(doc.chunks) > 0 {
			summary.Filename = doc.chunks[0].Filename
			summary.DocumentType = doc.chunks[0].DocumentType
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].DocumentID < summaries[j].DocumentID
	})
	return summaries, nil
}

func (s *memoryVectorStore) Ready() bool {
	return true
}

// cosineSimilarity 余弦相似度，零向量返回0
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
