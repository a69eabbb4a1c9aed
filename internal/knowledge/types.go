package knowledge

import (
	"crypto/md5"
	"encoding/hex"
)

// Document 摄取后的文档，索引后不可变更
type Document struct {
	DocumentID   string
	Filename     string
	DocumentType string
	RawText      string
	// PageMap 每页起始字符偏移（按页序非递减），偏移基于RawText
	PageMap []int
}

// Chunk 分块后的文本片段，创建后不可变更
type Chunk struct {
	ChunkID      string
	DocumentID   string
	Filename     string
	DocumentType string
	Text         string
	TokenCount   int
	CharCount    int
	PageNumber   int
	// SequenceIndex 保留文档内原始顺序，用于重叠去重和同分排序
	SequenceIndex int
}

// RetrievedChunk 单次查询的检索结果视图，不做持久化
type RetrievedChunk struct {
	Chunk      Chunk
	Similarity float64
	Rank       int
}

// Citation 面向用户的引用信息
type Citation struct {
	Filename    string `json:"filename"`
	PageNumber  int    `json:"page_number"`
	TextSnippet string `json:"text_snippet"`
}

// AnswerResult 答案生成结果，缺失字段以空值填充
type AnswerResult struct {
	Answer            string   `json:"answer"`
	Summary           string   `json:"summary"`
	DetailedAnswer    string   `json:"detailed_answer"`
	FollowupQuestions []string `json:"followup_questions"`
}

// PolicyCheckResult 策略检查结果
type PolicyCheckResult struct {
	ConfidenceScore float64  `json:"confidence_score"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// DocumentSummary 索引中文档的汇总视图
type DocumentSummary struct {
	DocumentID   string `json:"document_id"`
	Filename     string `json:"filename"`
	ChunkCount   int    `json:"chunk_count"`
	DocumentType string `json:"document_type"`
}

// ChunkStatistics 分块统计信息
type ChunkStatistics struct {
	TotalChunks       int     `json:"total_chunks"`
	TotalTokens       int     `json:"total_tokens"`
	TotalChars        int     `json:"total_chars"`
	AvgTokensPerChunk float64 `json:"avg_tokens_per_chunk"`
	AvgCharsPerChunk  float64 `json:"avg_chars_per_chunk"`
}

// NewDocumentID 根据文件名生成稳定的文档ID
func NewDocumentID(filename string) string {
	sum := md5.Sum([]byte(filename))
	return hex.EncodeToString(sum[:])[:16]
}

// GetChunkStatistics 汇总分块统计
func GetChunkStatistics(chunks []Chunk) ChunkStatistics {
	stats := ChunkStatistics{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return stats
	}
	for _, c := range chunks {
		stats.TotalTokens += c.TokenCount
		stats.TotalChars += c.CharCount
	}
	stats.AvgTokensPerChunk = float64(stats.TotalTokens) / float64(len(chunks))
	stats.AvgCharsPerChunk = float64(stats.TotalChars) / float64(len(chunks))
	return stats
}
