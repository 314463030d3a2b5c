package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"learnapp/config"
	"learnapp/internal/ai"
	"learnapp/internal/cost"
	"learnapp/internal/examples"
	"learnapp/internal/models"
	"learnapp/internal/pipeline"
	"learnapp/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxUploadBytes = 20 << 20

// ArtifactStore 保存与管理生成结果
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, id, spec, code string) (*storage.Artifact, error)
	ListArtifacts(ctx context.Context) ([]string, error)
	DeleteArtifact(ctx context.Context, id string) error
}

// Dependencies 服务器依赖的组件，Store可以为空
type Dependencies struct {
	Normalizer pipeline.Normalizer
	Generator  ai.Generator
	Catalog    *examples.Catalog
	Store      ArtifactStore
	Logger     zerolog.Logger
}

// Server 是API服务器结构
type Server struct {
	config     *config.Config
	router     *gin.Engine
	registry   *registry
	normalizer pipeline.Normalizer
	generator  ai.Generator
	catalog    *examples.Catalog
	store      ArtifactStore
	logger     zerolog.Logger
}

// NewServer 创建一个新的API服务器
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	reg, err := newRegistry(cfg.Server.SessionCacheSize, deps.Logger)
	if err != nil {
		return nil, err
	}

	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger), cors())

	catalog := deps.Catalog
	if catalog == nil {
		catalog = examples.NewCatalog(deps.Logger)
	}

	server := &Server{
		config:     cfg,
		router:     router,
		registry:   reg,
		normalizer: deps.Normalizer,
		generator:  deps.Generator,
		catalog:    catalog,
		store:      deps.Store,
		logger:     deps.Logger,
	}
	server.registerRoutes()
	return server, nil
}

// registerRoutes 注册API路由
func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/examples", s.listExamplesHandler)

		v1.GET("/artifacts", s.listArtifactsHandler)
		v1.DELETE("/artifacts/:artifactId", s.deleteArtifactHandler)

		v1.POST("/sessions", s.createSessionHandler)
		sessions := v1.Group("/sessions/:id", s.loadSession)
		{
			sessions.GET("", s.getSessionHandler)
			sessions.POST("/submissions", s.submitHandler)
			sessions.PUT("/spec", s.editSpecHandler)
			sessions.PUT("/code", s.editCodeHandler)
			sessions.DELETE("/submission", s.clearHandler)
			sessions.GET("/cost", s.costHandler)
			sessions.GET("/render", s.renderHandler)
			sessions.GET("/events", s.eventsHandler)
		}
	}
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动API服务器
func (s *Server) Run() error {
	return s.router.Run(":" + s.config.Server.Port)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  s.generator.Model(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) listExamplesHandler(c *gin.Context) {
	resp := gin.H{"examples": s.catalog.All()}
	if ex, ok := s.catalog.Default(); ok {
		resp["default"] = ex
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createSessionHandler(c *gin.Context) {
	id := uuid.NewString()
	recorder := newCostRecorder(&s.config.Pricing, s.store, s.logger)
	session := pipeline.NewSession(s.normalizer, s.generator, pipeline.Options{
		Temperature: s.config.AI.Temperature,
		Publisher:   recorder,
		Logger:      s.logger.With().Str("session", id).Logger(),
	})
	s.registry.add(id, &sessionEntry{session: session, costs: recorder})

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": id,
		"snapshot":  session.Snapshot(),
	})
}

// loadSession 按路径参数取出会话
func (s *Server) loadSession(c *gin.Context) {
	entry, ok := s.registry.get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.Set(sessionKey, entry)
	c.Next()
}

func (s *Server) getSessionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, entryFrom(c).session.Snapshot())
}

// submissionRequest JSON形式的提交
type submissionRequest struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Text     string `json:"text"`
	Topic    string `json:"topic"`
	Guidance string `json:"guidance"`
}

func (s *Server) submitHandler(c *gin.Context) {
	entry := entryFrom(c)

	sub, status, err := s.readSubmission(c)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if c.Query("wait") == "true" {
		snap, err := entry.session.Submit(c.Request.Context(), sub)
		if respondValidation(c, err) {
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	id, err := entry.session.Start(c.Request.Context(), sub)
	if respondValidation(c, err) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"submissionId": id,
		"snapshot":     entry.session.Snapshot(),
	})
}

// readSubmission 解析JSON或multipart提交；YouTube链接命中示例库时附带预置结果
func (s *Server) readSubmission(c *gin.Context) (pipeline.Submission, int, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return s.readFileSubmission(c)
	}

	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return pipeline.Submission{}, http.StatusBadRequest, errors.New("无效的请求参数")
	}

	sub := pipeline.Submission{UserGuidance: req.Guidance}
	switch models.BasisKind(req.Type) {
	case models.BasisYouTube:
		sub.Basis = models.YouTubeBasis{URL: req.URL}
		if ex, ok := s.catalog.Lookup(req.URL); ok {
			sub.Preseed = &pipeline.Preseed{Spec: ex.Spec, Code: ex.Code}
		}
	case models.BasisText:
		sub.Basis = models.TextBasis{Description: req.Text}
	case models.BasisWebLink:
		sub.Basis = models.WebLinkBasis{URL: req.URL}
	case models.BasisTopic:
		sub.Basis = models.TopicBasis{Topic: req.Topic}
	default:
		return sub, http.StatusBadRequest, fmt.Errorf("不支持的输入类型: %q", req.Type)
	}
	return sub, http.StatusOK, nil
}

func (s *Server) readFileSubmission(c *gin.Context) (pipeline.Submission, int, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return pipeline.Submission{}, http.StatusBadRequest, errors.New("缺少上传文件")
	}
	if header.Size > maxUploadBytes {
		return pipeline.Submission{}, http.StatusRequestEntityTooLarge, errors.New("文件过大")
	}

	f, err := header.Open()
	if err != nil {
		return pipeline.Submission{}, http.StatusBadRequest, fmt.Errorf("读取上传文件失败: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return pipeline.Submission{}, http.StatusBadRequest, fmt.Errorf("读取上传文件失败: %w", err)
	}

	return pipeline.Submission{
		Basis: models.FileBasis{
			Name:     header.Filename,
			MIMEType: header.Header.Get("Content-Type"),
			Data:     data,
		},
		UserGuidance: c.PostForm("guidance"),
	}, http.StatusOK, nil
}

func (s *Server) editSpecHandler(c *gin.Context) {
	var req struct {
		Spec string `json:"spec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	session := entryFrom(c).session
	id, changed, err := session.StartEditSpec(c.Request.Context(), req.Spec)
	if respondValidation(c, err) {
		return
	}
	status := http.StatusAccepted
	if !changed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"submissionId": id,
		"changed":      changed,
		"snapshot":     session.Snapshot(),
	})
}

func (s *Server) editCodeHandler(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	session := entryFrom(c).session
	if respondValidation(c, session.EditCode(req.Code)) {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (s *Server) clearHandler(c *gin.Context) {
	entry := entryFrom(c)
	entry.session.Clear()
	entry.costs.reset()
	c.JSON(http.StatusOK, entry.session.Snapshot())
}

func (s *Server) costHandler(c *gin.Context) {
	entry := entryFrom(c)
	snap := entry.session.Snapshot()

	rec, ok := entry.costs.lookup(snap.SubmissionID)
	if snap.State != pipeline.StateReady || !ok || rec.estimate == nil {
		msg := cost.ErrCostUnavailable.Error()
		if ok && rec.err != nil {
			msg = rec.err.Error()
		}
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}

	resp := gin.H{
		"submissionId": rec.submissionID,
		"estimate":     rec.estimate,
		"formatted":    cost.FormatSatoshis(rec.estimate.TotalCostSatoshis),
	}
	if rec.artifact != nil {
		resp["artifact"] = rec.artifact
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) renderHandler(c *gin.Context) {
	snap := entryFrom(c).session.Snapshot()
	if snap.Code == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "尚未生成代码"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(snap.Code))
}

func (s *Server) listArtifactsHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	ids, err := s.store.ListArtifacts(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("列出生成结果失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "列出生成结果失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": ids})
}

func (s *Server) deleteArtifactHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	id := c.Param("artifactId")
	if err := s.store.DeleteArtifact(c.Request.Context(), id); err != nil {
		s.logger.Error().Err(err).Str("artifact", id).Msg("删除生成结果失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除生成结果失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功", "id": id})
}

// respondValidation 把输入与状态错误映射为4xx，已写响应时返回true
func respondValidation(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, pipeline.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		// 生成失败已体现在快照中
		return false
	}
	return true
}

// cors 启用CORS
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("请求完成")
	}
}
