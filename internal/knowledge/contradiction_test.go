package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContradictionResponse(t *testing.T) {
	has, confidence, explanation := parseContradictionResponse(
		"HAS_CONTRADICTIONS: yes\nCONFIDENCE: 0.85\nEXPLANATION: Sources disagree on deadlines.")
	assert.True(t, has)
	assert.InDelta(t, 0.85, confidence, 1e-9)
	assert.Equal(t, "Sources disagree on deadlines.", explanation)

	has, _, explanation = parseContradictionResponse(
		"HAS_CONTRADICTIONS: no\nCONFIDENCE: 0.9\nEXPLANATION: none")
	assert.False(t, has)
	assert.Equal(t, "", explanation)

	// 大小写与字段缺失的容错
	has, confidence, explanation = parseContradictionResponse("has_contradictions: YES")
	assert.True(t, has)
	assert.InDelta(t, 0.5, confidence, 1e-9)
	assert.NotEmpty(t, explanation)

	// 完全不符合格式按无矛盾处理
	has, _, _ = parseContradictionResponse("I cannot determine this.")
	assert.False(t, has)

	// 置信度越界时收敛到[0,1]
	_, confidence, _ = parseContradictionResponse("HAS_CONTRADICTIONS: yes\nCONFIDENCE: 3.5")
	assert.Equal(t, 1.0, confidence)
}

func TestLLMContradictionCheckerSkipsSingleChunk(t *testing.T) {
	gen := &scriptedGenerator{}
	checker := NewLLMContradictionChecker(gen)

	findings, err := checker.CheckContradictions(context.Background(),
		retrievedWithSimilarity(0.9))
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, 0, gen.calls)
}

func TestLLMContradictionCheckerFinding(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"HAS_CONTRADICTIONS: yes\nCONFIDENCE: 0.8\nEXPLANATION: Conflicting deadlines.",
	}}
	checker := NewLLMContradictionChecker(gen)

	chunks := []RetrievedChunk{
		{Chunk: Chunk{DocumentID: "a", Filename: "a.txt", Text: "Deadline is Friday."}},
		{Chunk: Chunk{DocumentID: "b", Filename: "b.txt", Text: "Deadline is Monday."}},
	}
	findings, err := checker.CheckContradictions(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "a.txt", findings[0].SourceA)
	assert.Equal(t, "b.txt", findings[0].SourceB)
	assert.Equal(t, "Conflicting deadlines.", findings[0].Explanation)
	assert.InDelta(t, 0.8, findings[0].Confidence, 1e-9)

	// 提示词包含了分块内容
	assert.Contains(t, gen.prompts[0], "Deadline is Friday.")
}

func TestHeuristicContradictionChecker(t *testing.T) {
	checker := NewHeuristicContradictionChecker()
	ctx := context.Background()

	// 不同文档、共享话题、单侧否定 -> 疑似矛盾
	conflicting := []RetrievedChunk{
		{Chunk: Chunk{DocumentID: "a", Filename: "a.txt",
			Text: "Late submissions may be accepted at instructor discretion."}},
		{Chunk: Chunk{DocumentID: "b", Filename: "b.txt",
			Text: "Late submissions will never be accepted."}},
	}
	findings, err := checker.CheckContradictions(ctx, conflicting)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "a.txt", findings[0].SourceA)
	assert.Equal(t, "b.txt", findings[0].SourceB)

	// 同一文档内不判矛盾
	sameDoc := []RetrievedChunk{
		{Chunk: Chunk{DocumentID: "a", Text: "Late submissions accepted here."}},
		{Chunk: Chunk{DocumentID: "a", Text: "Late submissions never accepted."}},
	}
	findings, err = checker.CheckContradictions(ctx, sameDoc)
	require.NoError(t, err)
	assert.Empty(t, findings)

	// 话题不同（共享实词不足）不判矛盾
	unrelated := []RetrievedChunk{
		{Chunk: Chunk{DocumentID: "a", Text: "Tuition fees increase annually."}},
		{Chunk: Chunk{DocumentID: "b", Text: "Parking is never permitted overnight."}},
	}
	findings, err = checker.CheckContradictions(ctx, unrelated)
	require.NoError(t, err)
	assert.Empty(t, findings)

	// 双方都含否定时不判矛盾
	bothNegative := []RetrievedChunk{
		{Chunk: Chunk{DocumentID: "a", Text: "Late submissions are never accepted."}},
		{Chunk: Chunk{DocumentID: "b", Text: "Late submissions cannot be accepted."}},
	}
	findings, err = checker.CheckContradictions(ctx, bothNegative)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
