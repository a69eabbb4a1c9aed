package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ContradictionFinding 一对来源之间的矛盾
type ContradictionFinding struct {
	SourceA     string  `json:"source_a"`
	SourceB     string  `json:"source_b"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// ContradictionChecker 矛盾检测接口
type ContradictionChecker interface {
	// CheckContradictions 检查检索结果间是否存在相互矛盾的规定
	CheckContradictions(ctx context.Context, chunks []RetrievedChunk) ([]ContradictionFinding, error)
}

const contradictionPromptTemplate = `Review the following policy excerpts and determine whether any two of them contradict each other.

%s

Respond in EXACTLY this format:
HAS_CONTRADICTIONS: yes or no
CONFIDENCE: a number between 0 and 1
EXPLANATION: one sentence describing the contradiction, or "none"`

// llmContradictionChecker 基于LLM的矛盾检测，最多比较前5个分块
type llmContradictionChecker struct {
	generator Generator
}

// NewLLMContradictionChecker 创建LLM矛盾检测器
func NewLLMContradictionChecker(generator Generator) ContradictionChecker {
	return &llmContradictionChecker{generator: generator}
}

func (c *llmContradictionChecker) CheckContradictions(ctx context.Context, chunks []RetrievedChunk) ([]ContradictionFinding, error) {
	if len(chunks) < 2 {
		return []ContradictionFinding{}, nil
	}
	if !c.generator.Ready() {
		return nil, fmt.Errorf("generation service is not available")
	}

	limit := len(chunks)
	if limit > 5 {
		limit = 5
	}
	var sb strings.Builder
	for i := 0; i < limit; i++ {
		sb.WriteString(fmt.Sprintf("[%d] %s (page %d):\n%s\n\n",
			i+1, chunks[i].Chunk.Filename, chunks[i].Chunk.PageNumber, chunks[i].Chunk.Text))
	}

	prompt := fmt.Sprintf(contradictionPromptTemplate, strings.TrimSpace(sb.String()))
	raw, err := c.generator.Complete(ctx, prompt, 0.0, 300)
	if err != nil {
		return nil, err
	}

	has, confidence, explanation := parseContradictionResponse(raw)
	if !has {
		return []ContradictionFinding{}, nil
	}
	return []ContradictionFinding{
		{
			SourceA:     chunks[0].Chunk.Filename,
			SourceB:     chunks[limit-1].Chunk.Filename,
			Explanation: explanation,
			Confidence:  confidence,
		},
	}, nil
}

// parseContradictionResponse 容错解析固定格式响应，字段缺失按无矛盾处理
func parseContradictionResponse(raw string) (bool, float64, string) {
	has := false
	confidence := 0.5
	explanation := ""
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "HAS_CONTRADICTIONS:"):
			value := strings.ToLower(strings.TrimSpace(line[len("HAS_CONTRADICTIONS:"):]))
			has = strings.HasPrefix(value, "yes") || strings.HasPrefix(value, "true")
		case strings.HasPrefix(upper, "CONFIDENCE:"):
			value := strings.TrimSpace(line[len("CONFIDENCE:"):])
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				confidence = clampUnit(parsed)
			}
		case strings.HasPrefix(upper, "EXPLANATION:"):
			explanation = strings.TrimSpace(line[len("EXPLANATION:"):])
			if strings.EqualFold(explanation, "none") {
				explanation = ""
			}
		}
	}
	if has && explanation == "" {
		explanation = "Potential contradiction between retrieved sources"
	}
	return has, confidence, explanation
}

// heuristicContradictionChecker 无LLM时的规则式矛盾检测：
// 不同文档的两个分块共享至少2个实词且恰好一侧含否定词时判为疑似矛盾。
type heuristicContradictionChecker struct{}

// NewHeuristicContradictionChecker 创建规则式矛盾检测器
func NewHeuristicContradictionChecker() ContradictionChecker {
	return heuristicContradictionChecker{}
}

var negationMarkers = []string{"never", "not", "no", "prohibited", "forbidden", "cannot"}

func (heuristicContradictionChecker) CheckContradictions(ctx context.Context, chunks []RetrievedChunk) ([]ContradictionFinding, error) {
	findings := make([]ContradictionFinding, 0)
	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			a, b := chunks[i].Chunk, chunks[j].Chunk
			if a.DocumentID == b.DocumentID {
				continue
			}
			if sharedContentWords(a.Text, b.Text) < 2 {
				continue
			}
			if hasNegation(a.Text) == hasNegation(b.Text) {
				continue
			}
			findings = append(findings, ContradictionFinding{
				SourceA:     a.Filename,
				SourceB:     b.Filename,
				Explanation: fmt.Sprintf("%s and %s state opposite requirements on the same topic", a.Filename, b.Filename),
				Confidence:  0.4,
			})
		}
	}
	return findings, nil
}

func hasNegation(text string) bool {
	words := tokenizeWords(text)
	for _, w := range words {
		for _, marker := range negationMarkers {
			if w == marker {
				return true
			}
		}
	}
	return false
}

// sharedContentWords 统计两段文本共享的实词数（长度>3且非否定词）
func sharedContentWords(a, b string) int {
	seen := make(map[string]bool)
	for _, w := range tokenizeWords(a) {
		if len(w) > 3 && !isNegationMarker(w) {
			seen[w] = true
		}
	}
	count := 0
	counted := make(map[string]bool)
	for _, w := range tokenizeWords(b) {
		if seen[w] && !counted[w] {
			counted[w] = true
			count++
		}
	}
	return count
}

func isNegationMarker(w string) bool {
	for _, marker := range negationMarkers {
		if w == marker {
			return true
		}
	}
	return false
}

func tokenizeWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
