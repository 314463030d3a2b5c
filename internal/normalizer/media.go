package normalizer

import (
	"path/filepath"
	"strings"

	"learnapp/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMediaKind 依次根据声明的类型、文件内容嗅探和扩展名判断媒体类型
func DetectMediaKind(name, declaredMIME string, data []byte) models.MediaKind {
	if kind := kindFromMIME(declaredMIME); kind != models.MediaOther {
		return kind
	}

	if len(data) > 0 {
		if kind := kindFromMIME(mimetype.Detect(data).String()); kind != models.MediaOther {
			return kind
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.MediaPDF
	case ".txt", ".md", ".markdown", ".text":
		return models.MediaPlainText
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".aac", ".webm":
		return models.MediaAudio
	}
	return models.MediaOther
}

// SniffMIME 返回文件内容的MIME类型(不含参数)
func SniffMIME(data []byte) string {
	return baseMIME(mimetype.Detect(data).String())
}

func kindFromMIME(m string) models.MediaKind {
	m = baseMIME(m)
	switch {
	case m == "application/pdf":
		return models.MediaPDF
	case strings.HasPrefix(m, "text/"):
		return models.MediaPlainText
	case strings.HasPrefix(m, "audio/"):
		return models.MediaAudio
	}
	return models.MediaOther
}

func baseMIME(m string) string {
	m, _, _ = strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(m))
}
