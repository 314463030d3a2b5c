package normalizer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// 网页正文最多读取的字节数
const maxPageBytes = 5 << 20

// TextFetcher 获取网页可见文本
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// WebFetcher 直接请求网页并提取可见文本
type WebFetcher struct {
	client *http.Client
}

// NewWebFetcher 创建一个新的网页抓取器
func NewWebFetcher(timeout time.Duration) *WebFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// NewWebFetcherWithClient 使用指定的HTTP客户端
func NewWebFetcherWithClient(client *http.Client) *WebFetcher {
	return &WebFetcher{client: client}
}

// FetchText 获取页面并返回去掉标签、合并空白后的可见文本
func (f *WebFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	// 设置请求头 - 模拟浏览器请求
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("获取网页失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("获取网页失败: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("解析HTML失败: %w", err)
	}

	return VisibleText(doc), nil
}

// VisibleText 提取文档中用户可见的文本
func VisibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template, svg, iframe, head").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return collapseWhitespace(text)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
