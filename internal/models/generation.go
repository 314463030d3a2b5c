package models

// SourceKind 规范化后的内容来源，决定使用哪个提示词模板
type SourceKind string

const (
	SourceYouTube    SourceKind = "youtube"
	SourceText       SourceKind = "text"
	SourceFilename   SourceKind = "filename"
	SourcePDFContent SourceKind = "pdfContent"
	SourceWebLink    SourceKind = "weblink"
	SourceWebContent SourceKind = "webContent"
	SourceTopic      SourceKind = "topic"
	SourceAudio      SourceKind = "audio"
)

// PricingKind 计费时区分的输入类型
type PricingKind string

const (
	PricingText  PricingKind = "text"
	PricingAudio PricingKind = "audio"
)

// Advisory 规范化降级时给用户的提示
type Advisory struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	AdvisoryPDFFallback   = "pdf-fallback"
	AdvisoryFetchFallback = "fetch-fallback"
)

// NormalizedContent 规范化后的内容，可直接用于构造提示词
type NormalizedContent struct {
	Source     SourceKind `json:"source"`
	Text       string     `json:"text,omitempty"`
	URL        string     `json:"url,omitempty"`
	FileName   string     `json:"fileName,omitempty"`
	MIMEType   string     `json:"mimeType,omitempty"`
	Data       []byte     `json:"-"`
	Advisories []Advisory `json:"advisories,omitempty"`
}

// PricingKind 返回该内容对应的计费类型
func (n *NormalizedContent) PricingKind() PricingKind {
	if n != nil && n.Source == SourceAudio {
		return PricingAudio
	}
	return PricingText
}

// TokenUsage 表示API使用情况
type TokenUsage struct {
	PromptTokens int `json:"promptTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add 累加两次调用的用量
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens: u.PromptTokens + other.PromptTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// GenerationResult 表示一次成功的模型调用结果，Usage为nil表示供应商未返回用量
type GenerationResult struct {
	RawText string      `json:"rawText"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}
