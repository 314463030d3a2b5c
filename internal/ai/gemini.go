package ai

import (
	"context"
	"fmt"
	"strings"

	"learnapp/config"
	"learnapp/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const youtubeMIMEType = "video/mp4"

// contentGenerator 是genai.Models中用到的方法，便于测试替换
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient Gemini生成客户端
type GeminiClient struct {
	models contentGenerator
	model  string
	logger zerolog.Logger
}

// NewGeminiClient 创建Gemini客户端。
// 未配置API密钥时仍返回客户端，调用Generate时报MissingCredential，不会发起网络请求
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig, logger zerolog.Logger) (*GeminiClient, error) {
	c := &GeminiClient{model: cfg.Model, logger: logger}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn().Msg("未设置GEMINI_API_KEY，生成请求将失败")
		return c, nil
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Gemini客户端失败: %w", err)
	}
	c.models = cli.Models
	return c, nil
}

// Model 返回默认模型名称
func (g *GeminiClient) Model() string { return g.model }

// Generate 发送请求并按顺序校验：凭证、提示词拦截、候选结果、结束原因、文本
func (g *GeminiClient) Generate(ctx context.Context, req Request, content *models.NormalizedContent) (*models.GenerationResult, error) {
	if g.models == nil {
		return nil, &GenerationError{Kind: KindMissingCredential}
	}

	model := req.ModelName
	if model == "" {
		model = g.model
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		SafetySettings:   req.SafetySettings,
		ResponseMIMEType: req.ResponseMIMEType,
	}

	g.logger.Debug().Str("model", model).Str("source", sourceOf(content)).Msg("生成AI内容")
	resp, err := g.models.GenerateContent(ctx, model, []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: buildParts(req, content),
	}}, cfg)
	if err != nil {
		return nil, &GenerationError{Kind: KindTransportError, Err: err}
	}
	if resp == nil {
		return nil, &GenerationError{Kind: KindMalformedResponse}
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return nil, &GenerationError{Kind: KindPromptBlocked, Reason: string(fb.BlockReason)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, &GenerationError{Kind: KindNoCandidates}
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case "", genai.FinishReasonStop, genai.FinishReasonUnspecified:
	case genai.FinishReasonSafety:
		for _, r := range candidate.SafetyRatings {
			if r == nil {
				continue
			}
			g.logger.Error().
				Str("category", string(r.Category)).
				Str("probability", string(r.Probability)).
				Bool("blocked", r.Blocked).
				Msg("响应被安全设置拦截")
		}
		return nil, &GenerationError{Kind: KindSafetyBlocked, Reason: string(candidate.FinishReason)}
	default:
		return nil, &GenerationError{Kind: KindAbnormalStop, Reason: string(candidate.FinishReason)}
	}

	text, ok := candidateText(candidate)
	if !ok {
		return nil, &GenerationError{Kind: KindMalformedResponse}
	}

	result := &models.GenerationResult{RawText: text}
	if um := resp.UsageMetadata; um != nil {
		result.Usage = &models.TokenUsage{
			PromptTokens: int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
		g.logger.Info().
			Int32("prompt", um.PromptTokenCount).
			Int32("candidates", um.CandidatesTokenCount).
			Int32("total", um.TotalTokenCount).
			Msg("AI内容生成成功")
	} else {
		g.logger.Warn().Msg("响应中没有用量信息")
	}
	return result, nil
}

// buildParts 文本部分在前；YouTube附带视频链接，音频附带原始数据
func buildParts(req Request, content *models.NormalizedContent) []*genai.Part {
	parts := []*genai.Part{{Text: combinedPrompt(req)}}
	if content == nil {
		return parts
	}
	switch content.Source {
	case models.SourceYouTube:
		parts = append(parts, &genai.Part{FileData: &genai.FileData{
			FileURI:  content.URL,
			MIMEType: youtubeMIMEType,
		}})
	case models.SourceAudio:
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{
			MIMEType: content.MIMEType,
			Data:     content.Data,
		}})
	}
	return parts
}

// candidateText 拼接候选结果中的文本部分，跳过思考过程
func candidateText(c *genai.Candidate) (string, bool) {
	if c.Content == nil {
		return "", false
	}
	var (
		sb    strings.Builder
		found bool
	)
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		if p.Text != "" {
			sb.WriteString(p.Text)
			found = true
		}
	}
	return sb.String(), found
}

func sourceOf(content *models.NormalizedContent) string {
	if content == nil {
		return ""
	}
	return string(content.Source)
}
