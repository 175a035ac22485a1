package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"MagicDJ/cache"
	"MagicDJ/config"
	"MagicDJ/core/migrate"
	"MagicDJ/core/session"
	"MagicDJ/db"
	"MagicDJ/model"
	"MagicDJ/storage"

	"github.com/spf13/cobra"
)

var (
	migratePendingOnly bool
	migratePurgeLegacy bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "迁移旧格式音频数据",
	Long:  `把旧版状态里内联的base64音频迁移到二进制存储。命令可重复执行，每次只处理剩余的音轨。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer db.CloseRedis()

		states := cache.NewRedisStateCache(db.RedisClient)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		audio := storage.NewAudioStore(storage.NewMinioBackend(cfg), storage.OptionsFromConfig(cfg))
		engine := migrate.New(states, audio)

		pending, err := engine.PendingCount(ctx)
		if err != nil {
			log.Fatalf("读取旧格式状态失败: %v", err)
		}
		fmt.Printf("待迁移音轨: %d\n", pending)

		if migratePendingOnly {
			return
		}
		if pending == 0 {
			fmt.Println("没有需要迁移的数据。")
		} else {
			if err := audio.Init(ctx); err != nil {
				log.Fatalf("音频存储初始化失败: %v", err)
			}

			// 迁移同时更新当前元数据层，与服务器内的接线一致：
			// 否则下次恢复时迁移完的音轨拿不到播放引用
			store := session.New(audio, states, nil, nil)
			if err := store.Rehydrate(ctx); err != nil {
				log.Fatalf("加载当前元数据失败: %v", err)
			}
			engine.SetOnTrackMigrated(func(track model.Track) {
				store.MarkTrackMigrated(ctx, track)
			})

			result, err := engine.Migrate(ctx)
			if err != nil {
				log.Fatalf("迁移执行失败: %v", err)
			}

			fmt.Printf("迁移完成: %d 个音轨, 共 %d 字节, 状态 %s\n",
				result.MigratedCount, result.TotalSizeBytes, engine.Status())
			for _, e := range result.Errors {
				fmt.Printf("  失败: %s: %s\n", e.TrackID, e.Error)
			}

			// 进程即将退出，元数据同步落盘
			if err := store.Persist(ctx); err != nil {
				log.Fatalf("元数据写回失败: %v", err)
			}
		}

		if migratePurgeLegacy {
			remaining, err := engine.PendingCount(ctx)
			if err != nil {
				log.Fatalf("读取旧格式状态失败: %v", err)
			}
			if remaining > 0 {
				log.Fatalf("仍有 %d 个音轨未迁移，拒绝清除旧版数据", remaining)
			}
			if err := states.DeleteLegacy(ctx); err != nil {
				log.Fatalf("清除旧版数据失败: %v", err)
			}
			fmt.Println("旧版存储数据已清除。")
		}
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePendingOnly, "pending", false, "只显示待迁移数量，不执行迁移")
	migrateCmd.Flags().BoolVar(&migratePurgeLegacy, "purge-legacy", false, "迁移全部完成后清除旧版存储数据")
	rootCmd.AddCommand(migrateCmd)
}
