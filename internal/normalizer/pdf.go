package normalizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText 按页顺序读取PDF文本，页与页之间以换行分隔。
// PDF库遇到损坏文件时可能panic，这里统一转成错误返回。
func ExtractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("解析PDF失败: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开PDF失败: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("读取第%d页失败: %w", i, err)
		}
		b.WriteString(strings.TrimSpace(pageText))
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()), nil
}
