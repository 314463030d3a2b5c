package api

import (
	"context"

	"learnapp/config"
	"learnapp/internal/cost"
	"learnapp/internal/pipeline"
	"learnapp/internal/storage"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	sessionKey             = "session"
	defaultSessionCapacity = 256
	costRecordCapacity     = 16
)

type sessionEntry struct {
	session *pipeline.Session
	costs   *costRecorder
}

// registry 有容量上限的会话表，超出时淘汰最久未使用的会话
type registry struct {
	cache *lru.Cache[string, *sessionEntry]
}

func newRegistry(size int, logger zerolog.Logger) (*registry, error) {
	if size <= 0 {
		size = defaultSessionCapacity
	}
	cache, err := lru.NewWithEvict[string, *sessionEntry](size, func(id string, _ *sessionEntry) {
		logger.Debug().Str("session", id).Msg("会话已淘汰")
	})
	if err != nil {
		return nil, err
	}
	return &registry{cache: cache}, nil
}

func (r *registry) add(id string, e *sessionEntry) { r.cache.Add(id, e) }

func (r *registry) get(id string) (*sessionEntry, bool) { return r.cache.Get(id) }

func (r *registry) len() int { return r.cache.Len() }

func entryFrom(c *gin.Context) *sessionEntry {
	return c.MustGet(sessionKey).(*sessionEntry)
}

// costRecord 一次成功运行的费用与存储位置
type costRecord struct {
	submissionID string
	estimate     *cost.Estimate
	artifact     *storage.Artifact
	err          error
}

// costRecorder 接收运行结果，计算费用并保存生成结果。
// 记录按提交ID保存，较早提交的慢速上传不会覆盖之后提交的记录
type costRecorder struct {
	pricing *config.PricingConfig
	store   ArtifactStore
	logger  zerolog.Logger
	records *lru.Cache[string, costRecord]
}

func newCostRecorder(pricing *config.PricingConfig, store ArtifactStore, logger zerolog.Logger) *costRecorder {
	records, _ := lru.New[string, costRecord](costRecordCapacity)
	return &costRecorder{pricing: pricing, store: store, logger: logger, records: records}
}

// Publish 实现pipeline.Publisher
func (r *costRecorder) Publish(ctx context.Context, o pipeline.Outcome) {
	rec := costRecord{submissionID: o.SubmissionID, err: o.Err}
	if o.Err == nil {
		estimate, err := cost.Calculate(o.Usage, r.pricing, o.PricingKind)
		if err != nil {
			r.logger.Warn().Err(err).Str("submission", o.SubmissionID).Msg("无法估算费用")
			rec.err = err
		} else {
			rec.estimate = estimate
			r.logger.Info().
				Str("submission", o.SubmissionID).
				Str("model", o.ModelName).
				Float64("usd", estimate.TotalCostUSD).
				Str("sats", cost.FormatSatoshis(estimate.TotalCostSatoshis)).
				Msg("费用已估算")
		}
		// 上传完成前即可查询费用
		r.records.Add(o.SubmissionID, rec)

		if r.store != nil && o.Code != "" {
			artifact, err := r.store.SaveArtifact(ctx, o.SubmissionID, o.Spec, o.Code)
			if err != nil {
				r.logger.Error().Err(err).Str("submission", o.SubmissionID).Msg("保存生成结果失败")
				return
			}
			rec.artifact = artifact
		}
	}
	r.records.Add(o.SubmissionID, rec)
}

// lookup 按提交ID取费用记录
func (r *costRecorder) lookup(submissionID string) (costRecord, bool) {
	if submissionID == "" {
		return costRecord{}, false
	}
	return r.records.Get(submissionID)
}

func (r *costRecorder) reset() {
	r.records.Purge()
}
