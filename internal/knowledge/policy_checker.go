package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aihub/policyqa-go/internal/logger"
	"go.uber.org/zap"
)

// PolicyChecker 答案质量检查器：歧义、情态动词、矛盾、法律建议与置信度
type PolicyChecker struct {
	contradictionChecker ContradictionChecker
	maxCitations         int
}

// 歧义措辞表
var ambiguousPhrases = []string{
	"it depends",
	"may or may not",
	"unclear",
	"ambiguous",
	"not specified",
	"consult",
	"contact",
	"check with",
}

// 情态动词到确定性级别的映射
var modalVerbCertainty = map[string]string{
	"must":        "high",
	"shall":       "high",
	"will":        "high",
	"required":    "high",
	"mandatory":   "high",
	"may":         "low",
	"might":       "low",
	"could":       "low",
	"should":      "medium",
	"recommended": "medium",
}

// 法律话题指示词
var legalIndicators = []string{
	"legal action",
	"lawsuit",
	"sue",
	"attorney",
	"lawyer",
	"legal counsel",
	"court",
	"litigation",
}

// 置信度权重：扣分基数 + 首位相似度 + 引用数量，权重和为1
const (
	weightDeductionBase = 0.55
	weightTopSimilarity = 0.35
	weightCitationCount = 0.10
)

// NewPolicyChecker 创建检查器，contradictionChecker为nil时跳过矛盾检测
func NewPolicyChecker(contradictionChecker ContradictionChecker, maxCitations int) *PolicyChecker {
	if maxCitations <= 0 {
		maxCitations = 3
	}
	return &PolicyChecker{
		contradictionChecker: contradictionChecker,
		maxCitations:         maxCitations,
	}
}

// CheckPolicy 对答案执行全部子检查并计算置信度。
// 任何子检查出错都按"无发现"处理并记录日志，绝不阻断答案返回。
func (p *PolicyChecker) CheckPolicy(ctx context.Context, answer string, retrievedChunks []RetrievedChunk, query string) *PolicyCheckResult {
	ambiguityCount, foundPhrases := p.checkAmbiguity(answer)
	certainty, permissiveModals := p.analyzeModalVerbs(answer)
	isLegalTopic := p.checkLegalAdvice(answer, query)

	var contradictions []ContradictionFinding
	if p.contradictionChecker != nil && len(retrievedChunks) > 1 {
		findings, err := p.contradictionChecker.CheckContradictions(ctx, retrievedChunks)
		if err != nil {
			logger.Warn("contradiction check failed, treating as no finding", zap.Error(err))
		} else {
			contradictions = findings
		}
	}

	confidence := p.calculateConfidence(answer, retrievedChunks, ambiguityCount, certainty, len(contradictions) > 0, isLegalTopic)

	result := &PolicyCheckResult{
		ConfidenceScore: confidence,
		Warnings:        []string{},
		Recommendations: []string{},
	}

	if ambiguityCount > 0 {
		result.Warnings = append(result.Warnings,
			"This answer contains ambiguous language. Consider consulting official sources.")
		result.Recommendations = append(result.Recommendations,
			"Contact the relevant department for clarification.")
		logger.Debug("ambiguous phrases detected", zap.Strings("phrases", foundPhrases))
	}
	if certainty == "low" {
		result.Warnings = append(result.Warnings,
			"The policy contains language indicating flexibility or uncertainty.")
	}
	for _, finding := range contradictions {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Potential contradiction detected between %s and %s: %s",
			finding.SourceA, finding.SourceB, finding.Explanation))
	}
	if isLegalTopic {
		result.Warnings = append(result.Warnings,
			"This topic may involve legal matters. Consult the legal services office.")
		result.Recommendations = append(result.Recommendations,
			"Speak with the legal services office for legal matters.")
	}
	if len(permissiveModals) > 0 && certainty != "high" {
		result.Recommendations = append(result.Recommendations,
			"Some statements are permissive (optional), not mandatory. Verify which apply to your case.")
	}
	if sourceCount := countDistinctSources(retrievedChunks); sourceCount > 1 {
		result.Recommendations = append(result.Recommendations, fmt.Sprintf(
			"This answer references %d different policy documents. Review all sources for complete information.", sourceCount))
	}
	if confidence < 0.5 {
		result.Warnings = append(result.Warnings,
			"Low confidence answer. Please verify with the responsible office.")
	}

	return result
}

// checkAmbiguity 统计答案中出现的歧义措辞
func (p *PolicyChecker) checkAmbiguity(answer string) (int, []string) {
	answerLower := strings.ToLower(answer)
	found := make([]string, 0)
	for _, phrase := range ambiguousPhrases {
		if strings.Contains(answerLower, phrase) {
			found = append(found, phrase)
		}
	}
	return len(found), found
}

// analyzeModalVerbs 按情态动词判定整体确定性：
// 出现高确定性词则为high，否则出现低确定性词为low，否则有中等词为medium，无情态词为neutral。
func (p *PolicyChecker) analyzeModalVerbs(answer string) (string, []string) {
	answerLower := strings.ToLower(answer)
	hasHigh, hasLow, hasMedium := false, false, false
	permissive := make([]string, 0)

	for modal, certainty := range modalVerbCertainty {
		pattern := regexp.MustCompile(`\b` + modal + `\b`)
		if !pattern.MatchString(answerLower) {
			continue
		}
		switch certainty {
		case "high":
			hasHigh = true
		case "low":
			hasLow = true
			permissive = append(permissive, modal)
		case "medium":
			hasMedium = true
		}
	}

	switch {
	case hasHigh:
		return "high", permissive
	case hasLow:
		return "low", permissive
	case hasMedium:
		return "medium", permissive
	default:
		return "neutral", permissive
	}
}

// checkLegalAdvice 检查答案是否涉及法律话题
func (p *PolicyChecker) checkLegalAdvice(answer, query string) bool {
	answerLower := strings.ToLower(answer)
	for _, term := range legalIndicators {
		if strings.Contains(answerLower, term) {
			return true
		}
	}
	return false
}

// calculateConfidence 计算置信度：
// 先从1.0按发现逐项扣分得到基数，再与首位相似度、引用数量加权混合。
// 在其他输入不变时对首位相似度单调非减。
func (p *PolicyChecker) calculateConfidence(answer string, chunks []RetrievedChunk, ambiguityCount int, certainty string, hasContradictions, isLegalTopic bool) float64 {
	base := 1.0
	base -= 0.15 * float64(ambiguityCount)
	switch certainty {
	case "low":
		base -= 0.2
	case "medium":
		base -= 0.1
	}
	if hasContradictions {
		base -= 0.3
	}
	if isLegalTopic {
		base -= 0.2
	}
	base = clampUnit(base)

	topSimilarity := 0.0
	if len(chunks) > 0 {
		topSimilarity = clampUnit(chunks[0].Similarity)
	}

	citations := len(chunks)
	if citations > p.maxCitations {
		citations = p.maxCitations
	}
	citationFactor := float64(citations) / float64(p.maxCitations)

	score := weightDeductionBase*base + weightTopSimilarity*topSimilarity + weightCitationCount*citationFactor
	return clampUnit(score)
}

func countDistinctSources(chunks []RetrievedChunk) int {
	seen := make(map[string]bool)
	for _, rc := range chunks {
		seen[rc.Chunk.DocumentID] = true
	}
	return len(seen)
}
