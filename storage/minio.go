package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"MagicDJ/config"
	"MagicDJ/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 所有音频对象统一放在该前缀下，方便与其它对象隔离
const audioObjectPrefix = "audio/"

// MinioBackend 基于 MinIO 的音频二进制存储驱动
type MinioBackend struct {
	cfg    *config.Config
	client *minio.Client
}

// NewMinioBackend 创建 MinIO 驱动，连接在 Open 时建立
func NewMinioBackend(cfg *config.Config) *MinioBackend {
	return &MinioBackend{cfg: cfg}
}

// Open 初始化 MinIO 客户端并确保存储桶存在，可重复调用
func (b *MinioBackend) Open(ctx context.Context) error {
	if b.client == nil {
		logger.Info("正在连接 MinIO 服务器",
			logger.String("endpoint", b.cfg.MinioEndpoint),
			logger.String("bucket", b.cfg.MinioBucket))

		client, err := minio.New(b.cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(b.cfg.MinioAccessKey, b.cfg.MinioSecretKey, ""),
			Secure: b.cfg.MinioUseSSL,
			Region: b.cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
		}
		b.client = client
	}

	// 检查存储桶是否存在，不存在则创建
	exists, err := b.client.BucketExists(ctx, b.cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = b.client.MakeBucket(ctx, b.cfg.MinioBucket, minio.MakeBucketOptions{
			Region: b.cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", b.cfg.MinioBucket))
	}

	return nil
}

func (b *MinioBackend) objectName(trackID string) string {
	return audioObjectPrefix + trackID
}

// Put 写入或覆盖音频对象
func (b *MinioBackend) Put(ctx context.Context, trackID string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, b.cfg.MinioBucket, b.objectName(trackID),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
	if err != nil {
		return fmt.Errorf("上传音频对象失败: %w", err)
	}
	return nil
}

// Get 读取音频对象内容，缺失返回 ErrNotFound
func (b *MinioBackend) Get(ctx context.Context, trackID string) ([]byte, error) {
	object, err := b.client.GetObject(ctx, b.cfg.MinioBucket, b.objectName(trackID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取音频对象失败: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		// GetObject 在首次读取时才返回 NoSuchKey
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("读取音频对象内容失败: %w", err)
	}
	return data, nil
}

// Stat 返回音频对象大小，缺失返回 ErrNotFound
func (b *MinioBackend) Stat(ctx context.Context, trackID string) (int64, error) {
	info, err := b.client.StatObject(ctx, b.cfg.MinioBucket, b.objectName(trackID), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("查询音频对象失败: %w", err)
	}
	return info.Size, nil
}

// Remove 删除音频对象，对不存在的id不报错
func (b *MinioBackend) Remove(ctx context.Context, trackID string) error {
	err := b.client.RemoveObject(ctx, b.cfg.MinioBucket, b.objectName(trackID), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除音频对象失败: %w", err)
	}
	return nil
}

// List 返回全部音频对象的 id -> 字节数
func (b *MinioBackend) List(ctx context.Context) (map[string]int64, error) {
	sizes := make(map[string]int64)
	objectCh := b.client.ListObjects(ctx, b.cfg.MinioBucket, minio.ListObjectsOptions{
		Prefix:    audioObjectPrefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("遍历音频对象失败: %w", object.Err)
		}
		trackID := strings.TrimPrefix(object.Key, audioObjectPrefix)
		sizes[trackID] = object.Size
	}
	return sizes, nil
}

// PresignURL 签发限时的预签名播放地址
func (b *MinioBackend) PresignURL(ctx context.Context, trackID string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.cfg.MinioBucket, b.objectName(trackID), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("签发播放地址失败: %w", err)
	}
	return u.String(), nil
}
