package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"benefit-ai-api/internal/application/pipeline"
	"benefit-ai-api/internal/config"
	"benefit-ai-api/pkg/metrics"
)

const systemPrompt = `You are a health plan benefits assistant. Answer the member's question using ONLY the numbered evidence provided. Cite the evidence you use with its number in square brackets, e.g. [1]. If the evidence does not fully answer the question, say what is known and what is not. Never invent coverage amounts, limits, or exclusions.`

// Generator 基于 Eino ChatModel 的答案生成器。
// 失败只返回错误，兜底策略由合成层负责。
type Generator struct {
	factory  *EinoFactory
	provider string
	model    string
}

// NewGenerator 创建答案生成器
func NewGenerator(factory *EinoFactory, cfg *config.LLMConfig) *Generator {
	g := &Generator{factory: factory}
	if cfg != nil {
		g.provider = cfg.DefaultProvider
		if p, ok := cfg.Providers[cfg.DefaultProvider]; ok {
			g.model = p.Model
		}
	}
	return g
}

// Generate 调用大模型生成答案文本。历史轮次按原始角色注入消息序列，
// 让追问在对话上下文中被理解。
func (g *Generator) Generate(ctx context.Context, in pipeline.GenerationInput) (string, error) {
	if g == nil || g.factory == nil {
		return "", fmt.Errorf("chat model factory not configured")
	}

	chatModel, err := g.factory.Default(ctx)
	if err != nil {
		return "", err
	}

	msgs := make([]*schema.Message, 0, len(in.History)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	for _, turn := range in.History {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if turn.Role == "assistant" {
			msgs = append(msgs, schema.AssistantMessage(content, nil))
			continue
		}
		msgs = append(msgs, schema.UserMessage(content))
	}

	userContent := strings.TrimSpace(in.EvidenceContext) + "\n\nQuestion: " + strings.TrimSpace(in.Question)
	msgs = append(msgs, schema.UserMessage(userContent))

	outMsg, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if outMsg == nil {
		return "", fmt.Errorf("empty llm response")
	}

	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		usage := outMsg.ResponseMeta.Usage
		metrics.LLMTokensUsed.WithLabelValues(g.provider, g.model, "prompt").
			Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(g.provider, g.model, "completion").
			Add(float64(usage.CompletionTokens))
	}

	return strings.TrimSpace(outMsg.Content), nil
}
