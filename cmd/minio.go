package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"MagicDJ/config"
	"MagicDJ/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO音频存储诊断",
	Long:  `测试MinIO连接，显示音频存储的配额占用与告警级别。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store := storage.NewAudioStore(storage.NewMinioBackend(cfg), storage.OptionsFromConfig(cfg))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := store.Init(ctx); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		quota := store.GetQuota(ctx)
		fmt.Printf("已用空间: %d 字节\n", quota.Used)
		fmt.Printf("配额上限: %d 字节\n", quota.Total)
		fmt.Printf("占用比例: %.2f%%\n", quota.Percentage)
		fmt.Printf("告警级别: %s\n", store.WarningLevel(quota.Percentage))
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
