// Package normalizer 把各种用户输入转换成可直接构造提示词的内容。
package normalizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"learnapp/config"
	"learnapp/internal/models"

	"github.com/rs/zerolog"
)

// ErrFileRead 文件读取或解码失败，对文件类提交是致命错误
var ErrFileRead = errors.New("file read error")

const (
	defaultMinWebTextLength = 100
	defaultMinPDFTextLength = 50
	defaultAudioMIME        = "audio/mpeg"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normalizer 无状态的输入规范化器
type Normalizer struct {
	fetcher          TextFetcher
	minWebTextLength int
	minPDFTextLength int
	logger           zerolog.Logger
}

// New 创建规范化器，使用默认的网页抓取器
func New(cfg *config.NormalizerConfig, logger zerolog.Logger) *Normalizer {
	return NewWithFetcher(cfg, NewWebFetcher(cfg.FetchTimeout), logger)
}

// NewWithFetcher 创建规范化器并指定网页抓取器
func NewWithFetcher(cfg *config.NormalizerConfig, fetcher TextFetcher, logger zerolog.Logger) *Normalizer {
	n := &Normalizer{
		fetcher:          fetcher,
		minWebTextLength: defaultMinWebTextLength,
		minPDFTextLength: defaultMinPDFTextLength,
		logger:           logger,
	}
	if cfg != nil {
		if cfg.MinWebTextLength > 0 {
			n.minWebTextLength = cfg.MinWebTextLength
		}
		if cfg.MinPDFTextLength > 0 {
			n.minPDFTextLength = cfg.MinPDFTextLength
		}
	}
	return n
}

// Normalize 把输入转换为规范化内容。
// 网页和PDF提取失败时降级并附带提示，不会返回错误；
// 只有纯文本/音频文件读取失败才返回ErrFileRead。
func (n *Normalizer) Normalize(ctx context.Context, basis models.ContentBasis) (*models.NormalizedContent, error) {
	switch b := basis.(type) {
	case models.YouTubeBasis:
		return &models.NormalizedContent{Source: models.SourceYouTube, URL: strings.TrimSpace(b.URL)}, nil
	case models.TextBasis:
		return &models.NormalizedContent{Source: models.SourceText, Text: strings.TrimSpace(b.Description)}, nil
	case models.TopicBasis:
		return &models.NormalizedContent{Source: models.SourceTopic, Text: strings.TrimSpace(b.Topic)}, nil
	case models.WebLinkBasis:
		return n.normalizeWebLink(ctx, strings.TrimSpace(b.URL)), nil
	case models.FileBasis:
		return n.normalizeFile(b)
	default:
		panic(fmt.Sprintf("normalizer: unsupported content basis %T", basis))
	}
}

func (n *Normalizer) normalizeWebLink(ctx context.Context, url string) *models.NormalizedContent {
	fallback := func(reason string) *models.NormalizedContent {
		n.logger.Warn().Str("url", url).Str("reason", reason).Msg("网页内容不可用，改用链接生成")
		return &models.NormalizedContent{
			Source: models.SourceWebLink,
			URL:    url,
			Advisories: []models.Advisory{{
				Code:    models.AdvisoryFetchFallback,
				Message: "Could not read enough text from the web page; the app is generated from the URL only.",
			}},
		}
	}

	text, err := n.fetcher.FetchText(ctx, url)
	if err != nil {
		return fallback(err.Error())
	}
	if utf8.RuneCountInString(text) < n.minWebTextLength {
		return fallback(fmt.Sprintf("网页文本过短: %d 字符", utf8.RuneCountInString(text)))
	}

	n.logger.Debug().Str("url", url).Int("chars", len(text)).Msg("网页文本提取成功")
	return &models.NormalizedContent{Source: models.SourceWebContent, URL: url, Text: text}
}

func (n *Normalizer) normalizeFile(f models.FileBasis) (*models.NormalizedContent, error) {
	kind := f.MediaKind
	if kind == "" {
		kind = DetectMediaKind(f.Name, f.MIMEType, f.Data)
	}

	switch kind {
	case models.MediaPDF:
		return n.normalizePDF(f), nil
	case models.MediaPlainText:
		return n.normalizePlainText(f)
	case models.MediaAudio:
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: audio file %q is empty", ErrFileRead, f.Name)
		}
		mimeType := f.MIMEType
		if kindFromMIME(mimeType) != models.MediaAudio {
			mimeType = SniffMIME(f.Data)
		}
		if kindFromMIME(mimeType) != models.MediaAudio {
			mimeType = defaultAudioMIME
		}
		return &models.NormalizedContent{
			Source:   models.SourceAudio,
			FileName: f.Name,
			MIMEType: baseMIME(mimeType),
			Data:     f.Data,
		}, nil
	default:
		return filenameContent(f.Name), nil
	}
}

func (n *Normalizer) normalizePDF(f models.FileBasis) *models.NormalizedContent {
	text, err := ExtractPDFText(f.Data)
	if err == nil && utf8.RuneCountInString(text) >= n.minPDFTextLength {
		n.logger.Debug().Str("file", f.Name).Int("chars", len(text)).Msg("PDF文本提取成功")
		return &models.NormalizedContent{Source: models.SourcePDFContent, FileName: f.Name, Text: text}
	}

	reason := "PDF文本过短"
	if err != nil {
		reason = err.Error()
	}
	n.logger.Warn().Str("file", f.Name).Str("reason", reason).Msg("PDF提取失败，改用文件名生成")

	content := filenameContent(f.Name)
	content.Advisories = []models.Advisory{{
		Code:    models.AdvisoryPDFFallback,
		Message: "Could not extract enough text from the PDF; the app is generated from the file name only.",
	}}
	return content
}

func (n *Normalizer) normalizePlainText(f models.FileBasis) (*models.NormalizedContent, error) {
	data := bytes.TrimPrefix(f.Data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %q is not valid UTF-8 text", ErrFileRead, f.Name)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return filenameContent(f.Name), nil
	}
	return &models.NormalizedContent{Source: models.SourceText, FileName: f.Name, Text: text}, nil
}

func filenameContent(name string) *models.NormalizedContent {
	return &models.NormalizedContent{Source: models.SourceFilename, FileName: name}
}
