// Package parser 从模型输出中提取JSON和HTML，容忍markdown代码围栏。
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFence    = regexp.MustCompile("(?s)```(?:[jJ][sS][oO][nN])?(.*?)```")
	htmlFence    = regexp.MustCompile("(?is)```[ \\t]*(?:html|htm|xhtml)[ \\t]*\\n(.*?)```")
	genericFence = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+.-]*[ \\t]*\\n)?(.*?)```")
)

// ParseStructured 解析结构化输出。
// 整体是合法JSON对象或数组时直接返回，字符串值里的围栏不影响解析；
// 否则取第一个围栏内容解析为JSON，失败则返回围栏内文本；
// 无围栏时整体解析，失败则原样返回。空输入返回空字符串。
func ParseStructured(text string) any {
	if text == "" {
		return ""
	}

	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		var v any
		if err := json.Unmarshal([]byte(inner), &v); err != nil {
			return inner
		}
		return v
	}

	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return text
	}
	return v
}

// ParseDocument 提取HTML文档。
// 优先取第一个标注为html的围栏，其次取第一个普通围栏(不校验内容是否为HTML)，
// 都没有时原样返回。
func ParseDocument(text string) string {
	if m := htmlFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := genericFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// SpecField 读取结构化结果中的spec字段，要求为非空字符串
func SpecField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	spec, ok := obj["spec"].(string)
	if !ok || strings.TrimSpace(spec) == "" {
		return "", false
	}
	return spec, true
}
