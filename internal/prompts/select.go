// Package prompts 根据规范化内容选择spec阶段的提示词模板。
package prompts

import (
	"fmt"
	"strings"

	"learnapp/internal/models"
)

// Selection 选中的提示词
type Selection struct {
	Kind          models.SourceKind
	Text          string
	NeedsAddendum bool
}

type template struct {
	text          string
	placeholder   string
	needsAddendum bool
	value         func(c *models.NormalizedContent) string
}

// 内容类模板(pdfContent, webContent)已内嵌附加说明；仅含标识的模板需要另行追加
var templates = map[models.SourceKind]template{
	models.SourceYouTube: {
		text:          SpecFromVideoPrompt,
		placeholder:   "{url}",
		needsAddendum: true,
		value:         func(c *models.NormalizedContent) string { return c.URL },
	},
	models.SourceText: {
		text:          SpecFromTextPrompt,
		placeholder:   "{text}",
		needsAddendum: true,
		value:         func(c *models.NormalizedContent) string { return c.Text },
	},
	models.SourceFilename: {
		text:          SpecFromFilenamePrompt,
		placeholder:   "{filename}",
		needsAddendum: true,
		value:         func(c *models.NormalizedContent) string { return c.FileName },
	},
	models.SourcePDFContent: {
		text:          SpecFromPDFContentPrompt,
		placeholder:   "{pdfText}",
		needsAddendum: false,
		value:         func(c *models.NormalizedContent) string { return c.Text },
	},
	models.SourceWebLink: {
		text:          SpecFromWebLinkPrompt,
		placeholder:   "{url}",
		needsAddendum: true,
		value:         func(c *models.NormalizedContent) string { return c.URL },
	},
	models.SourceWebContent: {
		text:          SpecFromWebContentPrompt,
		placeholder:   "{webText}",
		needsAddendum: false,
		value:         func(c *models.NormalizedContent) string { return c.Text },
	},
	models.SourceTopic: {
		text:          SpecFromTopicPrompt,
		placeholder:   "{topic}",
		needsAddendum: true,
		value:         func(c *models.NormalizedContent) string { return c.Text },
	},
	models.SourceAudio: {
		text:          SpecFromAudioPrompt,
		needsAddendum: true,
	},
}

// Select 按来源类型查表并替换占位符。未知类型属于调用方错误，直接panic。
func Select(content *models.NormalizedContent) Selection {
	tpl, ok := templates[content.Source]
	if !ok {
		panic(fmt.Sprintf("prompts: no template for source %q", content.Source))
	}

	text := tpl.text
	// 先替换来源地址，避免网页正文里出现的占位符被二次替换
	if content.Source == models.SourceWebContent {
		text = strings.ReplaceAll(text, "{sourceUrl}", content.URL)
	}
	if tpl.placeholder != "" {
		text = strings.ReplaceAll(text, tpl.placeholder, tpl.value(content))
	}

	return Selection{
		Kind:          content.Source,
		Text:          text,
		NeedsAddendum: tpl.needsAddendum,
	}
}

// WithAddendum 在spec末尾追加附加说明
func WithAddendum(spec string, needsAddendum bool) string {
	if !needsAddendum {
		return spec
	}
	return spec + SpecAddendum
}
