package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/policyqa-go/internal/errors"
)

// scriptedGenerator 按脚本依次返回响应的测试桩
type scriptedGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (g *scriptedGenerator) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	g.prompts = append(g.prompts, prompt)
	idx := g.calls
	g.calls++
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if idx < len(g.responses) {
		return g.responses[idx], nil
	}
	return "", fmt.Errorf("unexpected generator call %d", idx)
}

func (g *scriptedGenerator) Ready() bool { return true }

func TestSynthesizeEmptyQuestion(t *testing.T) {
	s := NewSynthesizer(&scriptedGenerator{}, 0.2, 500)
	_, err := s.Synthesize(context.Background(), "  ", "some context")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

// 上下文为空时不调用生成服务，直接返回无资料答复
func TestSynthesizeEmptyContext(t *testing.T) {
	gen := &scriptedGenerator{}
	s := NewSynthesizer(gen, 0.2, 500)

	result, err := s.Synthesize(context.Background(), "What is the policy?", "")
	require.NoError(t, err)
	assert.Equal(t, 0, gen.calls)
	assert.Contains(t, result.Answer, "could not find")
	assert.NotEmpty(t, result.Summary)
	assert.NotEmpty(t, result.DetailedAnswer)
	assert.Empty(t, result.FollowupQuestions)
}

func TestSynthesizeParsesSummaryAndDetail(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Students must attend 80% of lectures.\n\nAccording to the handbook, attendance is mandatory for all lab sessions and students must attend at least 80% of lectures.",
		"1. What happens if attendance falls below 80%?\n2. Are medical absences excused?",
	}}
	s := NewSynthesizer(gen, 0.2, 500)

	result, err := s.Synthesize(context.Background(), "What is the attendance policy?", "[DOC: handbook.pdf | page: 1 | paragraph: 0]\nAttendance is mandatory.")
	require.NoError(t, err)

	assert.Equal(t, "Students must attend 80% of lectures.", result.Summary)
	assert.Contains(t, result.DetailedAnswer, "mandatory for all lab sessions")
	require.Len(t, result.FollowupQuestions, 2)
	assert.Equal(t, "What happens if attendance falls below 80%?", result.FollowupQuestions[0])
	assert.Equal(t, "Are medical absences excused?", result.FollowupQuestions[1])

	// 提示词带入了上下文和问题
	assert.Contains(t, gen.prompts[0], "handbook.pdf")
	assert.Contains(t, gen.prompts[0], "What is the attendance policy?")
}

// 响应没有空行分隔时整体同时作为摘要和详细回答
func TestSynthesizeTolerantParsing(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Single block answer without separator.",
		"no questions here",
	}}
	s := NewSynthesizer(gen, 0.2, 500)

	result, err := s.Synthesize(context.Background(), "question", "context")
	require.NoError(t, err)
	assert.Equal(t, "Single block answer without separator.", result.Answer)
	assert.Equal(t, result.Answer, result.Summary)
	assert.Equal(t, result.Answer, result.DetailedAnswer)
	// 响应里没有疑问句，追问为空而非报错
	assert.Empty(t, result.FollowupQuestions)
}

func TestSynthesizeGenerationFailure(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{fmt.Errorf("upstream 500")}}
	s := NewSynthesizer(gen, 0.2, 500)

	_, err := s.Synthesize(context.Background(), "question", "context")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGenerationService))
}

// 追问生成失败不影响主答案
func TestSynthesizeFollowupFailureNonFatal(t *testing.T) {
	gen := &scriptedGenerator{
		responses: []string{"The answer.", ""},
		errs:      []error{nil, fmt.Errorf("followup call failed")},
	}
	s := NewSynthesizer(gen, 0.2, 500)

	result, err := s.Synthesize(context.Background(), "question", "context")
	require.NoError(t, err)
	assert.Equal(t, "The answer.", result.Answer)
	assert.Empty(t, result.FollowupQuestions)
}

func TestSynthesizeGeneratorNotReady(t *testing.T) {
	s := NewSynthesizer(NoopGenerator{}, 0.2, 500)
	_, err := s.Synthesize(context.Background(), "question", "context")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGenerationService))
}

func TestParseFollowups(t *testing.T) {
	raw := "1) First question?\n- Second question?\nNot a question line\n3. Third question?\n4. Fourth question?"
	followups := parseFollowups(raw)
	// 最多3条，且只保留疑问句
	require.Len(t, followups, 3)
	assert.Equal(t, "First question?", followups[0])
	assert.Equal(t, "Second question?", followups[1])
	assert.Equal(t, "Third question?", followups[2])
}

func TestParseAnswerEmpty(t *testing.T) {
	result := parseAnswer("   ")
	assert.Equal(t, "", result.Answer)
	assert.Equal(t, "", result.Summary)
	assert.Equal(t, "", result.DetailedAnswer)
}
