package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"learnapp/config"
	"learnapp/internal/logger"
	"learnapp/internal/storage"

	"github.com/spf13/cobra"
)

// artifactStore 已保存生成结果的管理接口
type artifactStore interface {
	ListArtifacts(ctx context.Context) ([]string, error)
	ArtifactExists(ctx context.Context, id string) (bool, error)
	DeleteArtifact(ctx context.Context, id string) error
}

func newArtifactsCmd(open func(ctx context.Context) (artifactStore, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Manage generated apps saved in object storage",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved artifact IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			return listArtifacts(cmd.Context(), store, cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID...",
		Short: "Delete saved artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			return deleteArtifacts(cmd.Context(), store, args, cmd.OutOrStdout())
		},
	})
	return cmd
}

// openMinio 按环境配置连接对象存储
func openMinio(ctx context.Context) (artifactStore, error) {
	cfg := config.LoadConfig()
	if !cfg.MinIO.Enabled {
		return nil, errors.New("对象存储未启用，请设置 STORAGE_ENABLED=true")
	}
	client, err := storage.NewMinioClient(ctx, &cfg.MinIO, logger.New(cfg.Server.Env))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func listArtifacts(ctx context.Context, store artifactStore, w io.Writer) error {
	ids, err := store.ListArtifacts(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func deleteArtifacts(ctx context.Context, store artifactStore, ids []string, w io.Writer) error {
	for _, id := range ids {
		exists, err := store.ArtifactExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			fmt.Fprintf(w, "%s 不存在\n", id)
			continue
		}
		if err := store.DeleteArtifact(ctx, id); err != nil {
			return fmt.Errorf("删除%s失败: %w", id, err)
		}
		fmt.Fprintf(w, "%s 已删除\n", id)
	}
	return nil
}
