package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/aihub/policyqa-go/internal/errors"
	"github.com/aihub/policyqa-go/internal/logger"
	"go.uber.org/zap"
)

// Retriever 语义检索器：查询向量化 -> 相似检索 -> 去重排名
type Retriever struct {
	embedder      Embedder
	store         VectorStore
	topK          int
	snippetLength int
}

// NewRetriever 创建检索器，topK为0时使用默认值7
func NewRetriever(embedder Embedder, store VectorStore, topK int, snippetLength int) *Retriever {
	if topK <= 0 {
		topK = 7
	}
	if snippetLength <= 0 {
		snippetLength = 200
	}
	return &Retriever{
		embedder:      embedder,
		store:         store,
		topK:          topK,
		snippetLength: snippetLength,
	}
}

// Retrieve 检索与查询最相关的分块，按相似度降序，Rank从1开始
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationError("query is empty")
	}
	if !r.store.Ready() {
		return nil, errors.NewIndexUnavailableError("vector index is not available")
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.NewEmbeddingServiceError("failed to embed query").WithCause(err)
	}

	// 多取一倍候选，去重后再截断，避免相邻重叠块挤占名额
	matches, err := r.store.Search(ctx, queryVector, r.topK*2)
	if err != nil {
		return nil, errors.NewIndexUnavailableError("vector search failed").WithCause(err)
	}
	if len(matches) == 0 {
		return []RetrievedChunk{}, nil
	}

	deduped := dedupAdjacentChunks(matches)
	if len(deduped) > r.topK {
		deduped = deduped[:r.topK]
	}

	results := make([]RetrievedChunk, len(deduped))
	for i, m := range deduped {
		results[i] = RetrievedChunk{
			Chunk:      m.Chunk,
			Similarity: m.Score,
			Rank:       i + 1,
		}
	}

	logger.Debug("retrieval completed",
		zap.Int("candidates", len(matches)),
		zap.Int("returned", len(results)))
	return results, nil
}

// dedupAdjacentChunks 去掉同一文档内序号相邻的重复块，保留分数更高的一个。
// 输入按分数降序，保留顺序即保留排名。
func dedupAdjacentChunks(matches []SearchMatch) []SearchMatch {
	kept := make([]SearchMatch, 0, len(matches))
	for _, m := range matches {
		duplicate := false
		for _, k := range kept {
			if k.Chunk.DocumentID != m.Chunk.DocumentID {
				continue
			}
			diff := k.Chunk.SequenceIndex - m.Chunk.SequenceIndex
			if diff < 0 {
				diff = -diff
			}
			if diff <= 1 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, m)
		}
	}
	return kept
}

// FormatContext 拼装提示词上下文，每块带来源标记，按排名顺序
func (r *Retriever) FormatContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, rc := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[DOC: %s | page: %d | paragraph: %d]\n%s",
			rc.Chunk.Filename, rc.Chunk.PageNumber, rc.Chunk.SequenceIndex, rc.Chunk.Text))
	}
	return sb.String()
}

// GetCitations 从检索结果取引用，最多maxCitations条，片段截断到snippetLength字符
func (r *Retriever) GetCitations(chunks []RetrievedChunk, maxCitations int) []Citation {
	if maxCitations <= 0 {
		maxCitations = 3
	}
	citations := make([]Citation, 0, maxCitations)
	for _, rc := range chunks {
		if len(citations) >= maxCitations {
			break
		}
		citations = append(citations, Citation{
			Filename:    rc.Chunk.Filename,
			PageNumber:  rc.Chunk.PageNumber,
			TextSnippet: truncateSnippet(rc.Chunk.Text, r.snippetLength),
		})
	}
	return citations
}

// truncateSnippet 截断片段，尽量在空白处断开避免切断单词
func truncateSnippet(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}
