// Package ai 封装生成模型调用：请求构造、响应校验、超时与重试。
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"learnapp/config"
	"learnapp/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// JSONMIMEType spec阶段要求的响应格式
const JSONMIMEType = "application/json"

// Request 单次生成请求，按值传递，发送后不再修改
type Request struct {
	ModelName        string
	BasePrompt       string
	UserGuidance     string
	SafetySettings   []*genai.SafetySetting
	ResponseMIMEType string
	Temperature      float32
}

// Generator 定义生成服务接口
type Generator interface {
	// Generate 发送一次生成请求，content决定是否附带视频/音频
	Generate(ctx context.Context, req Request, content *models.NormalizedContent) (*models.GenerationResult, error)

	// Model 返回默认模型名称
	Model() string
}

// NewGenerator 根据配置创建生成服务，并套上超时与重试策略
func NewGenerator(ctx context.Context, cfg *config.AIConfig, logger zerolog.Logger) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case "gemini", "":
		gen, err = NewGeminiClient(ctx, &cfg.Gemini, logger)
	case "openai":
		gen = NewOpenAIClient(&cfg.OpenAI, logger)
	default:
		return nil, fmt.Errorf("不支持的AI提供商: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithPolicy(gen, cfg.Timeout, cfg.MaxRetries, logger), nil
}

// DefaultSafetySettings 四类危害均在中等及以上时拦截
func DefaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return settings
}

// combinedPrompt 基础指令加上可选的用户引导
func combinedPrompt(req Request) string {
	prompt := req.BasePrompt
	if guidance := strings.TrimSpace(req.UserGuidance); guidance != "" {
		prompt += "\n\nUser Guidance: " + guidance
	}
	return prompt
}

const (
	maxRetriesCap  = 1
	defaultBackoff = 2 * time.Second
)

// policyGenerator 为每次调用加上超时，并在传输错误时有限重试
type policyGenerator struct {
	next       Generator
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
}

// WithPolicy 包装生成服务。重试次数最多为1，只对传输错误生效
func WithPolicy(next Generator, timeout time.Duration, maxRetries int, logger zerolog.Logger) Generator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > maxRetriesCap {
		maxRetries = maxRetriesCap
	}
	return &policyGenerator{
		next:       next,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    defaultBackoff,
		logger:     logger,
	}
}

func (p *policyGenerator) Model() string { return p.next.Model() }

func (p *policyGenerator) Generate(ctx context.Context, req Request, content *models.NormalizedContent) (*models.GenerationResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := p.attempt(ctx, req, content)
		if err == nil {
			return result, nil
		}
		if !IsKind(err, KindTransportError) || attempt >= p.maxRetries {
			return nil, err
		}

		p.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("生成请求失败，正在重试")
		select {
		case <-ctx.Done():
			return nil, &GenerationError{Kind: KindTransportError, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt+1) * p.backoff):
		}
	}
}

func (p *policyGenerator) attempt(ctx context.Context, req Request, content *models.NormalizedContent) (*models.GenerationResult, error) {
	if p.timeout <= 0 {
		return p.next.Generate(ctx, req, content)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.next.Generate(timeoutCtx, req, content)
}
