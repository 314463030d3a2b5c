package models

import (
	"fmt"
	"net/url"
	"strings"
)

// BasisKind 用户输入的类型
type BasisKind string

const (
	BasisYouTube BasisKind = "youtube"
	BasisText    BasisKind = "text"
	BasisFile    BasisKind = "file"
	BasisWebLink BasisKind = "weblink"
	BasisTopic   BasisKind = "topic"
)

// MediaKind 上传文件的媒体类型
type MediaKind string

const (
	MediaPDF       MediaKind = "pdf"
	MediaPlainText MediaKind = "plainText"
	MediaAudio     MediaKind = "audio"
	MediaOther     MediaKind = "other"
)

// ContentBasis 是用户输入的标签联合类型，只能是下面五种之一
type ContentBasis interface {
	Kind() BasisKind
	isContentBasis()
}

// YouTubeBasis YouTube视频链接
type YouTubeBasis struct {
	URL string `json:"url"`
}

// TextBasis 自由文本描述
type TextBasis struct {
	Description string `json:"description"`
}

// FileBasis 上传的文件
type FileBasis struct {
	Name      string    `json:"name"`
	MIMEType  string    `json:"mimeType"`
	MediaKind MediaKind `json:"mediaKind"`
	Data      []byte    `json:"-"`
}

// WebLinkBasis 网页链接
type WebLinkBasis struct {
	URL string `json:"url"`
}

// TopicBasis 学习主题
type TopicBasis struct {
	Topic string `json:"topic"`
}

func (YouTubeBasis) Kind() BasisKind { return BasisYouTube }
func (TextBasis) Kind() BasisKind    { return BasisText }
func (FileBasis) Kind() BasisKind    { return BasisFile }
func (WebLinkBasis) Kind() BasisKind { return BasisWebLink }
func (TopicBasis) Kind() BasisKind   { return BasisTopic }

func (YouTubeBasis) isContentBasis() {}
func (TextBasis) isContentBasis()    {}
func (FileBasis) isContentBasis()    {}
func (WebLinkBasis) isContentBasis() {}
func (TopicBasis) isContentBasis()   {}

// ValidationError 用户输入不合法，发生在进入流水线之前
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate 检查输入是否满足进入流水线的前置条件
func Validate(basis ContentBasis) error {
	switch b := basis.(type) {
	case YouTubeBasis:
		return validateHTTPURL("url", b.URL)
	case WebLinkBasis:
		return validateHTTPURL("url", b.URL)
	case TextBasis:
		if strings.TrimSpace(b.Description) == "" {
			return &ValidationError{Field: "text", Message: "must not be empty"}
		}
	case TopicBasis:
		if strings.TrimSpace(b.Topic) == "" {
			return &ValidationError{Field: "topic", Message: "must not be empty"}
		}
	case FileBasis:
		if strings.TrimSpace(b.Name) == "" {
			return &ValidationError{Field: "file", Message: "missing file name"}
		}
	case nil:
		return &ValidationError{Field: "type", Message: "no content provided"}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported content %T", basis)}
	}
	return nil
}

// IsValidHTTPURL 判断是否为http/https绝对地址
func IsValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if !IsValidHTTPURL(raw) {
		return &ValidationError{Field: field, Message: "must be an http or https URL"}
	}
	return nil
}
