package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"learnapp/config"
	"learnapp/internal/ai"
	"learnapp/internal/api"
	"learnapp/internal/examples"
	"learnapp/internal/logger"
	"learnapp/internal/normalizer"
	"learnapp/internal/storage"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.Server.Env)
	log.Info().Str("env", cfg.Server.Env).Msg("启动学习应用生成服务")

	ctx := context.Background()

	generator, err := ai.NewGenerator(ctx, &cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("创建生成服务失败")
	}

	deps := api.Dependencies{
		Normalizer: normalizer.New(&cfg.Normalizer, log),
		Generator:  generator,
		Catalog:    examples.NewCatalog(log),
		Logger:     log,
	}

	var store *storage.MinioClient
	if cfg.MinIO.Enabled {
		store, err = storage.NewMinioClient(ctx, &cfg.MinIO, log)
		if err != nil {
			log.Fatal().Err(err).Msg("创建MinIO客户端失败")
		}
		deps.Store = store
	}

	refresh := func() { refreshCatalog(ctx, deps.Catalog, store, &cfg.Examples, log) }
	refresh()

	server, err := api.NewServer(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("创建服务器失败")
	}

	// 定时刷新示例库
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.Examples.RefreshCron, refresh); err != nil {
		log.Warn().Err(err).Msg("添加定时任务失败")
	} else {
		c.Start()
		defer c.Stop()
		log.Info().Str("spec", cfg.Examples.RefreshCron).Msg("定时任务已启动")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("服务器正在监听")
		if err := server.Run(); err != nil {
			log.Fatal().Err(err).Msg("服务器运行失败")
		}
	}()

	<-quit
	log.Info().Msg("收到退出信号，正在关闭服务")
}

// refreshCatalog 依次尝试本地文件和对象存储，都未配置时保留内置示例
func refreshCatalog(ctx context.Context, catalog *examples.Catalog, store *storage.MinioClient, cfg *config.ExamplesConfig, log zerolog.Logger) {
	if cfg.File != "" {
		if err := catalog.LoadFile(afero.NewOsFs(), cfg.File); err != nil {
			log.Warn().Err(err).Str("file", cfg.File).Msg("加载示例文件失败")
		}
		return
	}
	if store != nil && cfg.ObjectName != "" {
		if err := catalog.LoadFromStore(ctx, store, cfg.ObjectName); err != nil {
			log.Warn().Err(err).Str("object", cfg.ObjectName).Msg("从存储加载示例失败")
		}
	}
}
