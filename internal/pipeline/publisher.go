package pipeline

import (
	"context"

	"learnapp/internal/models"
)

// Outcome 每次运行结束时发布的结果。Err非空表示失败
type Outcome struct {
	SubmissionID string
	Spec         string
	Code         string
	Usage        *models.TokenUsage
	ModelName    string
	PricingKind  models.PricingKind
	Err          error
}

// Publisher 接收运行结果，例如计费或持久化
type Publisher interface {
	Publish(ctx context.Context, outcome Outcome)
}

// PublisherFunc 函数适配器
type PublisherFunc func(ctx context.Context, outcome Outcome)

// Publish 调用f
func (f PublisherFunc) Publish(ctx context.Context, outcome Outcome) { f(ctx, outcome) }
