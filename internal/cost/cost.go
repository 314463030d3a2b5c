// Package cost 根据token用量估算生成费用(美元与聪)。
package cost

import (
	"errors"
	"math"

	"learnapp/config"
	"learnapp/internal/models"

	"github.com/dustin/go-humanize"
)

// ErrCostUnavailable 缺少用量信息，无法估算费用
var ErrCostUnavailable = errors.New("cost unavailable: token usage is missing")

const tokensPerMillion = 1_000_000

// Estimate 费用估算结果
type Estimate struct {
	BaseCostUSD       float64 `json:"baseCostUsd"`
	MarkupUSD         float64 `json:"markupUsd"`
	TotalCostUSD      float64 `json:"totalCostUsd"`
	TotalCostSatoshis int64   `json:"totalCostSatoshis"`
	Details           Details `json:"details"`
}

// Details 计算所用的参数
type Details struct {
	PromptTokens          int     `json:"promptTokens"`
	OutputTokens          int     `json:"outputTokens"`
	TotalTokens           int     `json:"totalTokens"`
	InputPricePerMillion  float64 `json:"inputPricePerMillion"`
	OutputPricePerMillion float64 `json:"outputPricePerMillion"`
	MarkupRate            float64 `json:"markupRate"`
	SatoshisPerUSD        float64 `json:"satoshisPerUsd"`
}

// Calculate 计算费用。聪数总是向上取整
func Calculate(usage *models.TokenUsage, pricing *config.PricingConfig, kind models.PricingKind) (*Estimate, error) {
	if usage == nil || pricing == nil {
		return nil, ErrCostUnavailable
	}
	if usage.PromptTokens < 0 || usage.OutputTokens < 0 {
		return nil, ErrCostUnavailable
	}

	inputPrice := pricing.InputPriceTextPerMillion
	if kind == models.PricingAudio {
		inputPrice = pricing.InputPriceAudioPerMillion
	}
	outputPrice := pricing.OutputPricePerMillion

	inputCost := float64(usage.PromptTokens) / tokensPerMillion * inputPrice
	outputCost := float64(usage.OutputTokens) / tokensPerMillion * outputPrice
	base := inputCost + outputCost
	markup := base * pricing.MarkupRate
	total := base + markup
	rate := pricing.SatoshisPerUSD()

	return &Estimate{
		BaseCostUSD:       base,
		MarkupUSD:         markup,
		TotalCostUSD:      total,
		TotalCostSatoshis: int64(math.Ceil(total * rate)),
		Details: Details{
			PromptTokens:          usage.PromptTokens,
			OutputTokens:          usage.OutputTokens,
			TotalTokens:           usage.PromptTokens + usage.OutputTokens,
			InputPricePerMillion:  inputPrice,
			OutputPricePerMillion: outputPrice,
			MarkupRate:            pricing.MarkupRate,
			SatoshisPerUSD:        rate,
		},
	}, nil
}

// FormatSatoshis 格式化为"1,234 sats"
func FormatSatoshis(sats int64) string {
	return humanize.Comma(sats) + " sats"
}
