package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// 加载.env文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告: 无法加载.env文件: %v", err)
	}
}

// Config 应用配置
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Pricing    PricingConfig
	MinIO      MinIOConfig
	Normalizer NormalizerConfig
	Examples   ExamplesConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port             string
	Env              string
	SessionCacheSize int
}

// AIConfig 生成模型配置
type AIConfig struct {
	Provider    string // "gemini", "openai"
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
	Gemini      GeminiConfig
	OpenAI      OpenAIConfig
}

// GeminiConfig Gemini配置
type GeminiConfig struct {
	APIKey string
	Model  string
}

// OpenAIConfig OpenAI兼容接口配置
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	DefaultBaseURL string
}

// PricingConfig 计费配置，价格单位为每百万token美元
type PricingConfig struct {
	InputPriceTextPerMillion  float64
	InputPriceAudioPerMillion float64
	OutputPricePerMillion     float64
	MarkupRate                float64
	BTCPriceUSD               float64
}

// SatoshisPerBTC 每个比特币的聪数
const SatoshisPerBTC = 100_000_000

// SatoshisPerUSD 一美元对应的聪数
func (p *PricingConfig) SatoshisPerUSD() float64 {
	if p.BTCPriceUSD <= 0 {
		return 0
	}
	return SatoshisPerBTC / p.BTCPriceUSD
}

// MinIOConfig MinIO存储配置
type MinIOConfig struct {
	Enabled         bool
	Endpoint        string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
}

// NormalizerConfig 输入规范化配置
type NormalizerConfig struct {
	FetchTimeout     time.Duration
	MinWebTextLength int
	MinPDFTextLength int
}

// ExamplesConfig 示例库配置
type ExamplesConfig struct {
	ObjectName  string
	File        string
	RefreshCron string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             getEnvOrDefault("APP_PORT", "3001"),
			Env:              getEnvOrDefault("APP_ENV", "production"),
			SessionCacheSize: getEnvIntOrDefault("SESSION_CACHE_SIZE", 256),
		},
		AI: AIConfig{
			Provider:    getEnvOrDefault("AI_PROVIDER", "gemini"),
			Temperature: float32(getEnvFloatOrDefault("AI_TEMPERATURE", 0.75)),
			Timeout:     getEnvDurationOrDefault("AI_TIMEOUT", 2*time.Minute),
			MaxRetries:  getEnvIntOrDefault("AI_MAX_RETRIES", 0),
			Gemini: GeminiConfig{
				APIKey: firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY")),
				Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
			},
			OpenAI: OpenAIConfig{
				BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				APIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
				Model:          getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
				MaxTokens:      getEnvIntOrDefault("OPENAI_MAX_TOKENS", 8192),
				DefaultBaseURL: "https://api.openai.com/v1",
			},
		},
		Pricing: PricingConfig{
			InputPriceTextPerMillion:  getEnvFloatOrDefault("INPUT_PRICE_TEXT_PER_MILLION", 0.15),
			InputPriceAudioPerMillion: getEnvFloatOrDefault("INPUT_PRICE_AUDIO_PER_MILLION", 1.00),
			OutputPricePerMillion:     getEnvFloatOrDefault("OUTPUT_PRICE_PER_MILLION", 0.60),
			MarkupRate:                getEnvFloatOrDefault("ADMIN_MARKUP_PERCENTAGE", 0.15),
			BTCPriceUSD:               getEnvFloatOrDefault("BTC_PRICE_USD", 30000),
		},
		MinIO: MinIOConfig{
			Enabled:         getEnvBoolOrDefault("STORAGE_ENABLED", false),
			Endpoint:        getEnvOrDefault("MINIO_ENDPOINT", "http://localhost:9000"),
			BucketName:      getEnvOrDefault("MINIO_BUCKET", "learnapp"),
			AccessKeyID:     getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		},
		Normalizer: NormalizerConfig{
			FetchTimeout:     getEnvDurationOrDefault("WEB_FETCH_TIMEOUT", 30*time.Second),
			MinWebTextLength: getEnvIntOrDefault("MIN_WEB_TEXT_LENGTH", 100),
			MinPDFTextLength: getEnvIntOrDefault("MIN_PDF_TEXT_LENGTH", 50),
		},
		Examples: ExamplesConfig{
			ObjectName:  getEnvOrDefault("EXAMPLES_OBJECT", "examples/examples.json"),
			File:        getEnvOrDefault("EXAMPLES_FILE", ""),
			RefreshCron: getEnvOrDefault("EXAMPLES_REFRESH_CRON", "0 */30 * * * *"),
		},
	}
}

// getEnvOrDefault 获取环境变量或默认值
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvIntOrDefault 获取环境变量(整数)或默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloatOrDefault 获取环境变量(浮点数)或默认值
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDurationOrDefault 获取环境变量(时长，如"90s")或默认值
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvBoolOrDefault 获取环境变量(布尔)或默认值
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
