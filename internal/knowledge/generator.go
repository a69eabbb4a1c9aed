package knowledge

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aihub/policyqa-go/internal/dashscope"
)

// Generator 文本生成接口，供答案合成与矛盾检测复用
type Generator interface {
	// Complete 执行一次生成，返回完整文本
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
	// Ready 检查生成服务是否可用
	Ready() bool
}

// OpenAIGenerator OpenAI聊天补全生成器
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	limiter sync.Mutex
}

// NewOpenAIGenerator 创建OpenAI生成器，model为空时使用gpt-4o-mini
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("OpenAI client not initialized")
	}

	g.limiter.Lock()
	defer g.limiter.Unlock()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g != nil && g.client != nil
}

// DashScopeGenerator 走DashScope兼容接口的生成器
type DashScopeGenerator struct {
	model string
}

// NewDashScopeGenerator 创建DashScope生成器，model为空时使用qwen-plus
func NewDashScopeGenerator(model string) *DashScopeGenerator {
	if model == "" {
		model = "qwen-plus"
	}
	return &DashScopeGenerator{model: model}
}

func (g *DashScopeGenerator) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	service := dashscope.GetGlobalService()
	if service == nil {
		return "", fmt.Errorf("DashScope service not initialized")
	}

	req := dashscope.ChatRequest{
		Model: g.model,
		Messages: []dashscope.ChatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: &temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	resp, err := service.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *DashScopeGenerator) Ready() bool {
	return dashscope.IsGlobalServiceReady()
}

// NoopGenerator 永远不可用的占位生成器，用于未配置生成服务的场景
type NoopGenerator struct{}

func (NoopGenerator) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return "", fmt.Errorf("no generation service configured")
}

func (NoopGenerator) Ready() bool {
	return false
}
