// Package pipeline 驱动"内容 -> spec -> 代码"的两阶段生成，并维护会话状态。
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"learnapp/internal/ai"
	"learnapp/internal/models"
	"learnapp/internal/parser"
	"learnapp/internal/prompts"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State 会话状态
type State string

const (
	StateIdle        State = "idle"
	StateLoadingSpec State = "loading-spec"
	StateLoadingCode State = "loading-code"
	StateReady       State = "ready"
	StateError       State = "error"
)

var (
	// ErrInvalidSpecShape spec阶段的结构化结果缺少非空的spec字段
	ErrInvalidSpecShape = errors.New(`the model response did not contain a non-empty "spec" field`)
	// ErrInvalidTransition 当前状态不允许该操作
	ErrInvalidTransition = errors.New("operation not allowed in the current state")
)

// Normalizer 把用户输入转换为规范化内容
type Normalizer interface {
	Normalize(ctx context.Context, basis models.ContentBasis) (*models.NormalizedContent, error)
}

// Preseed 预先准备好的spec和代码，调用方保证与Basis对应
type Preseed struct {
	Spec string
	Code string
}

// Submission 一次提交
type Submission struct {
	Basis        models.ContentBasis
	UserGuidance string
	Preseed      *Preseed
}

// Snapshot 会话状态快照
type Snapshot struct {
	SubmissionID string             `json:"submissionId,omitempty"`
	State        State              `json:"state"`
	Spec         string             `json:"spec,omitempty"`
	Code         string             `json:"code,omitempty"`
	Error        string             `json:"error,omitempty"`
	Advisories   []models.Advisory  `json:"advisories,omitempty"`
	Usage        *models.TokenUsage `json:"usage,omitempty"`
	PricingKind  models.PricingKind `json:"pricingKind,omitempty"`
	ModelName    string             `json:"modelName,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Options 会话参数
type Options struct {
	ModelName   string
	Temperature float32
	Publisher   Publisher
	Logger      zerolog.Logger
}

// Session 单个用户的生成会话。
// 每次运行都有新的提交ID，只有ID仍是当前活动ID时结果才会生效
type Session struct {
	normalizer  Normalizer
	generator   ai.Generator
	publisher   Publisher
	modelName   string
	temperature float32
	logger      zerolog.Logger
	newID       func() string

	mu          sync.Mutex
	activeID    string
	state       State
	spec        string
	code        string
	errMsg      string
	advisories  []models.Advisory
	usage       *models.TokenUsage
	pricingKind models.PricingKind
	updatedAt   time.Time
	subscribers map[int]chan Snapshot
	nextSubID   int

	wg sync.WaitGroup
}

// NewSession 创建会话，初始状态为Idle
func NewSession(normalizer Normalizer, generator ai.Generator, opts Options) *Session {
	modelName := opts.ModelName
	if modelName == "" && generator != nil {
		modelName = generator.Model()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = PublisherFunc(func(context.Context, Outcome) {})
	}
	return &Session{
		normalizer:  normalizer,
		generator:   generator,
		publisher:   publisher,
		modelName:   modelName,
		temperature: opts.Temperature,
		logger:      opts.Logger,
		newID:       uuid.NewString,
		state:       StateIdle,
		updatedAt:   time.Now(),
		subscribers: make(map[int]chan Snapshot),
	}
}

// Snapshot 返回当前状态
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submit 同步执行一次提交，返回最终状态。运行失败时同时返回对应错误
func (s *Session) Submit(ctx context.Context, sub Submission) (Snapshot, error) {
	id, err := s.begin(ctx, sub)
	if err != nil {
		return s.Snapshot(), err
	}
	if sub.Preseed != nil {
		return s.Snapshot(), nil
	}
	return s.Snapshot(), s.run(ctx, id, sub)
}

// Start 异步执行一次提交，立即返回提交ID。运行不受ctx取消影响
func (s *Session) Start(ctx context.Context, sub Submission) (string, error) {
	id, err := s.begin(ctx, sub)
	if err != nil || sub.Preseed != nil {
		return id, err
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(runCtx, id, sub)
	}()
	return id, nil
}

// EditSpec 用新的spec重新生成代码。与当前spec去除首尾空白后相同时不做任何事
func (s *Session) EditSpec(ctx context.Context, spec string) (Snapshot, error) {
	id, changed, err := s.beginEdit(spec)
	if err != nil || !changed {
		return s.Snapshot(), err
	}
	return s.Snapshot(), s.runEdit(ctx, id, spec)
}

// StartEditSpec 异步版本的EditSpec。返回的changed为false表示内容未变
func (s *Session) StartEditSpec(ctx context.Context, spec string) (id string, changed bool, err error) {
	id, changed, err = s.beginEdit(spec)
	if err != nil || !changed {
		return id, changed, err
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runEdit(runCtx, id, spec)
	}()
	return id, true, nil
}

// EditCode 直接修改生成的代码，不触发生成
func (s *Session) EditCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrInvalidTransition
	}
	s.code = code
	s.touchLocked()
	return nil
}

// Clear 清空输入，无条件回到Idle。进行中的运行结果会被丢弃
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
	s.state = StateIdle
	s.spec = ""
	s.code = ""
	s.errMsg = ""
	s.advisories = nil
	s.usage = nil
	s.pricingKind = ""
	s.touchLocked()
}

// Wait 等待所有异步运行结束
func (s *Session) Wait() {
	s.wg.Wait()
}

// Subscribe 订阅状态变化。缓冲满时丢弃最旧的快照，调用返回的函数取消订阅
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, 16)
	ch <- s.snapshotLocked()
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(c)
			}
		})
	}
}

// begin 校验输入并切换到新的提交。预置结果直接进入Ready
func (s *Session) begin(ctx context.Context, sub Submission) (string, error) {
	if err := models.Validate(sub.Basis); err != nil {
		return "", err
	}

	id := s.newID()
	s.mu.Lock()
	s.activeID = id
	s.spec = ""
	s.code = ""
	s.errMsg = ""
	s.advisories = nil
	s.usage = nil
	s.pricingKind = models.PricingText

	if sub.Preseed != nil {
		s.state = StateReady
		s.spec = sub.Preseed.Spec
		s.code = sub.Preseed.Code
		s.usage = &models.TokenUsage{}
		s.touchLocked()
		s.mu.Unlock()

		s.logger.Info().Str("submission", id).Msg("使用预置结果")
		s.publisher.Publish(ctx, Outcome{
			SubmissionID: id,
			Spec:         sub.Preseed.Spec,
			Code:         sub.Preseed.Code,
			Usage:        &models.TokenUsage{},
			ModelName:    s.modelName,
			PricingKind:  models.PricingText,
		})
		return id, nil
	}

	s.state = StateLoadingSpec
	s.touchLocked()
	s.mu.Unlock()
	return id, nil
}

func (s *Session) beginEdit(spec string) (string, bool, error) {
	if strings.TrimSpace(spec) == "" {
		return "", false, &models.ValidationError{Field: "spec", Message: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateReady:
	case s.state == StateError && s.spec != "":
	default:
		return "", false, ErrInvalidTransition
	}
	if strings.TrimSpace(spec) == strings.TrimSpace(s.spec) && s.state == StateReady {
		return s.activeID, false, nil
	}

	id := s.newID()
	s.activeID = id
	s.state = StateLoadingCode
	s.spec = spec
	s.errMsg = ""
	s.usage = nil
	s.pricingKind = models.PricingText
	s.touchLocked()
	return id, true, nil
}

// run 执行完整的两阶段生成
func (s *Session) run(ctx context.Context, id string, sub Submission) error {
	log := s.logger.With().Str("submission", id).Str("basis", string(sub.Basis.Kind())).Logger()

	content, err := s.normalizer.Normalize(ctx, sub.Basis)
	if err != nil {
		return s.fail(ctx, id, err)
	}
	if !s.commit(id, func() {
		s.advisories = content.Advisories
		s.pricingKind = content.PricingKind()
	}) {
		return nil
	}

	selection := prompts.Select(content)
	log.Info().Str("template", string(selection.Kind)).Msg("开始生成spec")

	specResult, err := s.generator.Generate(ctx, ai.Request{
		ModelName:        s.modelName,
		BasePrompt:       selection.Text,
		UserGuidance:     sub.UserGuidance,
		SafetySettings:   ai.DefaultSafetySettings(),
		ResponseMIMEType: ai.JSONMIMEType,
		Temperature:      s.temperature,
	}, content)
	if err != nil {
		return s.fail(ctx, id, err)
	}

	spec, ok := parser.SpecField(parser.ParseStructured(specResult.RawText))
	if !ok {
		return s.fail(ctx, id, ErrInvalidSpecShape)
	}
	spec = prompts.WithAddendum(spec, selection.NeedsAddendum)

	if !s.commit(id, func() {
		s.state = StateLoadingCode
		s.spec = spec
	}) {
		log.Debug().Msg("提交已过期，丢弃spec结果")
		return nil
	}

	log.Info().Msg("开始生成代码")
	codeResult, err := s.generateCode(ctx, spec)
	if err != nil {
		return s.fail(ctx, id, err)
	}

	return s.finish(ctx, id, parser.ParseDocument(codeResult.RawText), combineUsage(specResult.Usage, codeResult.Usage))
}

// runEdit 只执行代码阶段
func (s *Session) runEdit(ctx context.Context, id, spec string) error {
	s.logger.Info().Str("submission", id).Msg("spec已修改，重新生成代码")
	codeResult, err := s.generateCode(ctx, spec)
	if err != nil {
		return s.fail(ctx, id, err)
	}
	return s.finish(ctx, id, parser.ParseDocument(codeResult.RawText), codeResult.Usage)
}

func (s *Session) generateCode(ctx context.Context, spec string) (*models.GenerationResult, error) {
	return s.generator.Generate(ctx, ai.Request{
		ModelName:      s.modelName,
		BasePrompt:     spec,
		SafetySettings: ai.DefaultSafetySettings(),
		Temperature:    s.temperature,
	}, nil)
}

func (s *Session) finish(ctx context.Context, id, code string, usage *models.TokenUsage) error {
	var (
		kind models.PricingKind
		spec string
	)
	if !s.commit(id, func() {
		s.state = StateReady
		s.code = code
		s.usage = usage
		kind = s.pricingKind
		spec = s.spec
	}) {
		s.logger.Debug().Str("submission", id).Msg("提交已过期，丢弃代码结果")
		return nil
	}

	s.logger.Info().Str("submission", id).Int("codeBytes", len(code)).Msg("生成完成")
	s.publisher.Publish(ctx, Outcome{
		SubmissionID: id,
		Spec:         spec,
		Code:         code,
		Usage:        usage,
		ModelName:    s.modelName,
		PricingKind:  kind,
	})
	return nil
}

// fail 进入Error状态。spec阶段成功产生的spec保留可见
func (s *Session) fail(ctx context.Context, id string, err error) error {
	if !s.commit(id, func() {
		s.state = StateError
		s.errMsg = err.Error()
	}) {
		s.logger.Debug().Str("submission", id).Err(err).Msg("提交已过期，丢弃错误")
		return err
	}

	s.logger.Error().Str("submission", id).Err(err).Msg("生成失败")
	s.publisher.Publish(ctx, Outcome{SubmissionID: id, ModelName: s.modelName, Err: err})
	return err
}

// commit 仅当id仍是当前提交时应用修改并通知订阅者
func (s *Session) commit(id string, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.activeID {
		return false
	}
	apply()
	s.touchLocked()
	return true
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SubmissionID: s.activeID,
		State:        s.state,
		Spec:         s.spec,
		Code:         s.code,
		Error:        s.errMsg,
		PricingKind:  s.pricingKind,
		ModelName:    s.modelName,
		UpdatedAt:    s.updatedAt,
	}
	if len(s.advisories) > 0 {
		snap.Advisories = append([]models.Advisory(nil), s.advisories...)
	}
	if s.usage != nil {
		u := *s.usage
		snap.Usage = &u
	}
	return snap
}

// combineUsage 两个阶段都有用量时求和，否则视为缺失
func combineUsage(a, b *models.TokenUsage) *models.TokenUsage {
	if a == nil || b == nil {
		return nil
	}
	sum := a.Add(*b)
	return &sum
}
