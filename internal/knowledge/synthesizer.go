package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/aihub/policyqa-go/internal/errors"
	"github.com/aihub/policyqa-go/internal/logger"
	"go.uber.org/zap"
)

const answerPromptTemplate = `You are a policy assistant. Answer the question using ONLY the provided context.
If the context does not contain the answer, say so explicitly. Do not invent information.
Every factual statement must be supported by the context.

Context:
%s

Question: %s

Answer format:
- First paragraph: a short summary of the answer.
- After a blank line: the detailed answer with references to the source documents.`

const followupPromptTemplate = `Based on the question and answer below, suggest up to 3 short follow-up questions the user might ask next. Return one question per line, nothing else.

Question: %s

Answer: %s`

// Synthesizer 基于检索上下文的答案生成器
type Synthesizer struct {
	generator   Generator
	temperature float64
	maxTokens   int
}

// NewSynthesizer 创建答案生成器
func NewSynthesizer(generator Generator, temperature float64, maxTokens int) *Synthesizer {
	if temperature <= 0 {
		temperature = 0.2
	}
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &Synthesizer{
		generator:   generator,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Synthesize 根据检索上下文生成答案。上下文为空时不调用LLM，直接返回无资料答复。
func (s *Synthesizer) Synthesize(ctx context.Context, question, contextText string) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewValidationError("question is empty")
	}

	if strings.TrimSpace(contextText) == "" {
		answer := "I could not find relevant information in the indexed documents to answer this question."
		return &AnswerResult{
			Answer:            answer,
			Summary:           answer,
			DetailedAnswer:    answer,
			FollowupQuestions: []string{},
		}, nil
	}

	if !s.generator.Ready() {
		return nil, errors.NewGenerationServiceError("generation service is not available")
	}

	prompt := fmt.Sprintf(answerPromptTemplate, contextText, question)
	raw, err := s.generator.Complete(ctx, prompt, s.temperature, s.maxTokens)
	if err != nil {
		return nil, errors.NewGenerationServiceError("answer generation failed").WithCause(err)
	}

	result := parseAnswer(raw)

	// 追问生成失败不影响主答案
	followups, err := s.generateFollowups(ctx, question, result.Answer)
	if err != nil {
		logger.Warn("failed to generate follow-up questions", zap.Error(err))
		followups = []string{}
	}
	result.FollowupQuestions = followups
	return result, nil
}

// parseAnswer 解析LLM输出：首个空行前为摘要，之后为详细回答。
// 格式不符时整体同时作为摘要和详细回答，保证字段始终非空。
func parseAnswer(raw string) *AnswerResult {
	raw = strings.TrimSpace(raw)
	result := &AnswerResult{
		Answer:         raw,
		Summary:        raw,
		DetailedAnswer: raw,
	}
	if raw == "" {
		return result
	}

	if idx := strings.Index(raw, "\n\n"); idx > 0 {
		summary := strings.TrimSpace(raw[:idx])
		detail := strings.TrimSpace(raw[idx+2:])
		if summary != "" && detail != "" {
			result.Summary = summary
			result.DetailedAnswer = detail
		}
	}
	return result
}

// generateFollowups 生成追问，最多3条，仅保留疑问句
func (s *Synthesizer) generateFollowups(ctx context.Context, question, answer string) ([]string, error) {
	prompt := fmt.Sprintf(followupPromptTemplate, question, answer)
	raw, err := s.generator.Complete(ctx, prompt, 0.7, 200)
	if err != nil {
		return nil, err
	}
	return parseFollowups(raw), nil
}

// parseFollowups 逐行解析追问，去掉编号前缀，只接受含问号的行
func parseFollowups(raw string) []string {
	followups := make([]string, 0, 3)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "0123456789.)-• \t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.ContainsAny(line, "?？") {
			continue
		}
		followups = append(followups, line)
		if len(followups) >= 3 {
			break
		}
	}
	return followups
}
