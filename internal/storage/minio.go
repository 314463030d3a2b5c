// Package storage 基于MinIO保存生成结果并读取示例库。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"learnapp/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

const (
	artifactPrefix = "apps/"
	specObject     = "spec.md"
	codeObject     = "index.html"
	presignExpiry  = 7 * 24 * time.Hour
)

// Artifact 一次生成结果在存储中的位置
type Artifact struct {
	ID      string `json:"id"`
	SpecURL string `json:"specUrl"`
	CodeURL string `json:"codeUrl"`
}

// MinioClient 是MinIO存储客户端的封装
type MinioClient struct {
	client     *minio.Client
	bucketName string
	logger     zerolog.Logger
}

// NewMinioClient 创建一个新的MinIO客户端，bucket不存在时自动创建
func NewMinioClient(ctx context.Context, cfg *config.MinIOConfig, logger zerolog.Logger) (*MinioClient, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("解析MinIO endpoint失败: %w", err)
	}

	endpoint := u.Host
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查bucket是否存在失败: %w", err)
	}
	if !exists {
		logger.Info().Str("bucket", cfg.BucketName).Msg("bucket不存在，正在创建")
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建bucket失败: %w", err)
		}
	}

	return &MinioClient{client: client, bucketName: cfg.BucketName, logger: logger}, nil
}

// SaveArtifact 保存spec和生成的HTML，返回可访问的地址
func (c *MinioClient) SaveArtifact(ctx context.Context, id, spec, code string) (*Artifact, error) {
	specURL, err := c.UploadFile(ctx, ArtifactObject(id, specObject), []byte(spec), "text/markdown; charset=utf-8")
	if err != nil {
		return nil, err
	}
	codeURL, err := c.UploadFile(ctx, ArtifactObject(id, codeObject), []byte(code), "text/html; charset=utf-8")
	if err != nil {
		return nil, err
	}
	return &Artifact{ID: id, SpecURL: specURL, CodeURL: codeURL}, nil
}

// ListArtifacts 列出已保存的生成结果ID，按字典序排列
func (c *MinioClient) ListArtifacts(ctx context.Context) ([]string, error) {
	keys, err := c.ListFiles(ctx, artifactPrefix)
	if err != nil {
		return nil, err
	}
	return ArtifactIDs(keys), nil
}

// DeleteArtifact 删除一次生成结果的全部对象
func (c *MinioClient) DeleteArtifact(ctx context.Context, id string) error {
	for _, name := range []string{specObject, codeObject} {
		if err := c.client.RemoveObject(ctx, c.bucketName, ArtifactObject(id, name), minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("删除对象失败: %w", err)
		}
	}
	c.logger.Info().Str("artifact", id).Msg("生成结果已删除")
	return nil
}

// ArtifactExists 判断生成结果是否存在
func (c *MinioClient) ArtifactExists(ctx context.Context, id string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucketName, ArtifactObject(id, codeObject), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("获取对象信息失败: %w", err)
}

// UploadFile 上传文件到MinIO，返回预签名URL
func (c *MinioClient) UploadFile(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	info, err := c.client.PutObject(ctx, c.bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传文件失败: %w", err)
	}
	c.logger.Debug().Str("object", objectName).Int64("size", info.Size).Msg("文件上传成功")

	presignedURL, err := c.GetPresignedURL(ctx, objectName, presignExpiry)
	if err != nil {
		c.logger.Warn().Err(err).Str("object", objectName).Msg("生成预签名URL失败")
		return fmt.Sprintf("/%s/%s", c.bucketName, objectName), nil
	}
	return presignedURL, nil
}

// DownloadFile 从MinIO下载文件
func (c *MinioClient) DownloadFile(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象失败: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象数据失败: %w", err)
	}
	return data, nil
}

// GetPresignedURL 生成预签名URL
func (c *MinioClient) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := c.client.PresignedGetObject(ctx, c.bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// ListFiles 列出指定前缀的所有文件
func (c *MinioClient) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	objectCh := c.client.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var objects []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", object.Err)
		}
		objects = append(objects, object.Key)
	}
	return objects, nil
}

// ArtifactObject 生成结果中某个文件的对象名
func ArtifactObject(id, name string) string {
	return path.Join(artifactPrefix, id, name)
}

// ArtifactIDs 从对象名中提取去重后的生成结果ID
func ArtifactIDs(keys []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, artifactPrefix)
		if rest == key {
			continue
		}
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
