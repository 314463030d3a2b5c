package ai

import (
	"context"
	"strings"

	"learnapp/config"
	"learnapp/internal/models"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI兼容接口的生成客户端，只支持文本输入
type OpenAIClient struct {
	client    *openai.Client
	config    *config.OpenAIConfig
	maxTokens int
	logger    zerolog.Logger
}

// NewOpenAIClient 创建一个新的OpenAI兼容客户端
func NewOpenAIClient(cfg *config.OpenAIConfig, logger zerolog.Logger) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cfg.DefaultBaseURL
	}
	if cfg.APIKey == "" {
		logger.Warn().Msg("未设置OPENAI_API_KEY，生成请求将失败")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		config:    cfg,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Model 返回默认模型名称
func (c *OpenAIClient) Model() string { return c.config.Model }

// Generate 发送聊天请求。视频和音频输入无法通过该接口传递
func (c *OpenAIClient) Generate(ctx context.Context, req Request, content *models.NormalizedContent) (*models.GenerationResult, error) {
	if strings.TrimSpace(c.config.APIKey) == "" {
		return nil, &GenerationError{Kind: KindMissingCredential}
	}
	if content != nil && (content.Source == models.SourceYouTube || content.Source == models.SourceAudio) {
		return nil, &GenerationError{
			Kind:   KindUnsupportedContent,
			Reason: string(content.Source) + " input requires the gemini provider",
		}
	}

	model := req.ModelName
	if model == "" {
		model = c.config.Model
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: combinedPrompt(req),
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: req.Temperature,
	}
	if req.ResponseMIMEType == JSONMIMEType {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.logger.Debug().Str("model", model).Msg("生成AI内容")
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, &GenerationError{Kind: KindTransportError, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &GenerationError{Kind: KindNoCandidates}
	}

	choice := resp.Choices[0]
	switch choice.FinishReason {
	case "", openai.FinishReasonStop, openai.FinishReasonNull:
	case openai.FinishReasonContentFilter:
		return nil, &GenerationError{Kind: KindSafetyBlocked, Reason: string(choice.FinishReason)}
	default:
		return nil, &GenerationError{Kind: KindAbnormalStop, Reason: string(choice.FinishReason)}
	}
	if choice.Message.Content == "" {
		return nil, &GenerationError{Kind: KindMalformedResponse}
	}

	result := &models.GenerationResult{RawText: choice.Message.Content}
	if resp.Usage.TotalTokens > 0 {
		result.Usage = &models.TokenUsage{
			PromptTokens: resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
		c.logger.Info().Int("total", resp.Usage.TotalTokens).Msg("AI内容生成成功")
	} else {
		c.logger.Warn().Msg("响应中没有用量信息")
	}
	return result, nil
}
