// Package examples 管理预置的示例(spec与代码成对)，用于跳过生成直接展示。
package examples

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

//go:embed examples.json
var defaultCatalog []byte

// Example 一个预置示例，URL是对应的YouTube链接
type Example struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Spec  string `json:"spec"`
	Code  string `json:"code"`
}

// ObjectReader 从对象存储读取文件
type ObjectReader interface {
	DownloadFile(ctx context.Context, objectName string) ([]byte, error)
}

// Catalog 线程安全的示例库
type Catalog struct {
	mu       sync.RWMutex
	examples []Example
	byURL    map[string]int
	logger   zerolog.Logger
}

// NewCatalog 创建示例库并加载内置示例
func NewCatalog(logger zerolog.Logger) *Catalog {
	c := &Catalog{byURL: map[string]int{}, logger: logger}
	if err := c.Load(bytes.NewReader(defaultCatalog)); err != nil {
		logger.Error().Err(err).Msg("加载内置示例失败")
	}
	return c
}

// Load 从JSON数组读取示例并整体替换当前内容
func (c *Catalog) Load(r io.Reader) error {
	var items []Example
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return fmt.Errorf("解析示例失败: %w", err)
	}

	byURL := make(map[string]int, len(items))
	kept := items[:0]
	for _, ex := range items {
		key := normalizeURL(ex.URL)
		if key == "" || strings.TrimSpace(ex.Spec) == "" || strings.TrimSpace(ex.Code) == "" {
			c.logger.Warn().Str("title", ex.Title).Msg("跳过不完整的示例")
			continue
		}
		if _, dup := byURL[key]; dup {
			continue
		}
		byURL[key] = len(kept)
		kept = append(kept, ex)
	}

	c.mu.Lock()
	c.examples = kept
	c.byURL = byURL
	c.mu.Unlock()

	c.logger.Info().Int("count", len(kept)).Msg("示例已加载")
	return nil
}

// LoadFile 从文件系统读取示例
func (c *Catalog) LoadFile(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("打开示例文件失败: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}

// LoadFromStore 从对象存储读取示例
func (c *Catalog) LoadFromStore(ctx context.Context, store ObjectReader, objectName string) error {
	data, err := store.DownloadFile(ctx, objectName)
	if err != nil {
		return err
	}
	return c.Load(bytes.NewReader(data))
}

// All 返回全部示例的副本
func (c *Catalog) All() []Example {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Example(nil), c.examples...)
}

// Lookup 按链接查找示例
func (c *Catalog) Lookup(url string) (Example, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byURL[normalizeURL(url)]
	if !ok {
		return Example{}, false
	}
	return c.examples[i], true
}

// Default 第一个示例
func (c *Catalog) Default() (Example, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.examples) == 0 {
		return Example{}, false
	}
	return c.examples[0], true
}

func normalizeURL(u string) string {
	return strings.TrimSpace(u)
}
