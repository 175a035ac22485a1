package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MagicDJ/cache"
	"MagicDJ/config"
	"MagicDJ/core/importer"
	"MagicDJ/core/migrate"
	"MagicDJ/core/opqueue"
	"MagicDJ/core/session"
	"MagicDJ/db"
	"MagicDJ/logger"
	"MagicDJ/model"
	"MagicDJ/repository"
	"MagicDJ/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// Redis承载元数据持久化，连不上无法提供服务
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("无法连接Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("Redis连接成功")

	// 会话记录归档是尽力而为：数据库不可用时只降级归档功能
	var sessionRepo repository.SessionRepository
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Warn("无法连接MySQL，会话记录归档功能降级", logger.ErrorField(err))
	} else {
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(&model.SessionRecord{}); err != nil {
			logger.Warn("会话记录表迁移失败", logger.ErrorField(err))
		} else {
			sessionRepo = repository.NewGormSessionRepository(db.GormDB)
		}
	}

	// 实时会话心跳缓存同样尽力而为
	liveCache, err := cache.NewLiveSessionCache(cfg)
	if err != nil {
		logger.Warn("实时会话缓存不可用", logger.ErrorField(err))
		liveCache = nil
	} else {
		defer liveCache.Close()
	}

	// 音频二进制存储：初始化失败时控制台保持可用，
	// 只是本地音频持久化降级
	audioStore := storage.NewAudioStore(storage.NewMinioBackend(cfg), storage.OptionsFromConfig(cfg))
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := audioStore.Init(initCtx); err != nil {
		logger.Error("音频存储不可用，本地音频持久化降级", logger.ErrorField(err))
	}
	cancelInit()

	stateCache := cache.NewRedisStateCache(db.RedisClient)
	store := session.New(audioStore, stateCache, sessionRepo, liveCache)

	// 恢复持久化状态并重签播放引用
	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Rehydrate(rehydrateCtx); err != nil {
		logger.Error("状态恢复失败，使用默认状态继续", logger.ErrorField(err))
	}
	cancelRehydrate()

	engine := migrate.New(stateCache, audioStore)
	engine.SetOnTrackMigrated(func(track model.Track) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store.MarkTrackMigrated(ctx, track)
	})

	queue := opqueue.New(time.Duration(cfg.DebounceWindowMS) * time.Millisecond)

	apiHandler := NewAPIHandler(store, audioStore, engine, queue, sessionRepo, liveCache, cfg)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 导入目录监听
	if cfg.ImportWatchDir != "" {
		watcher := importer.New(cfg.ImportWatchDir, store)
		if err := watcher.Start(rootCtx); err != nil {
			logger.Warn("导入目录监听启动失败", logger.ErrorField(err))
		}
	}

	// 会话计时tick：经过时间由墙钟重算
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case now := <-ticker.C:
				store.TickSession(now)
			}
		}
	}()

	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 状态与配额
	router.HandleFunc("/api/state", apiHandler.GetStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/quota", apiHandler.GetQuotaHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", apiHandler.UpdateSettingsHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/volume", apiHandler.SetMasterVolumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/storage-error", apiHandler.ClearStorageErrorHandler).Methods(http.MethodDelete)

	// 音轨
	router.HandleFunc("/api/tracks", apiHandler.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.AddTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.UpdateTrackHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}", apiHandler.RemoveTrackHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{id}/audio", apiHandler.UploadTrackAudioHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/audio", apiHandler.GetTrackAudioHandler).Methods(http.MethodGet)

	// 通道队列与提示列表
	router.HandleFunc("/api/queues/{channel}/items", apiHandler.EnqueueTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queues/{channel}/items/{index}", apiHandler.RemoveQueueItemHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/queues/{channel}/move", apiHandler.MoveQueueItemHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queues/{channel}/state", apiHandler.SetChannelStateHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/cue", apiHandler.AddCueItemHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/cue/{index}", apiHandler.RemoveCueItemHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/cue/move", apiHandler.MoveCueItemHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/cue/position", apiHandler.SetCuePositionHandler).Methods(http.MethodPut)

	// 控制操作（经防抖优先级队列仲裁）
	router.HandleFunc("/api/operations", apiHandler.SubmitOperationHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/operations", apiHandler.ClearOperationsHandler).Methods(http.MethodDelete)

	// 会话生命周期
	router.HandleFunc("/api/session/start", apiHandler.StartSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/session/stop", apiHandler.StopSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/session/mode-switch", apiHandler.LogModeSwitchHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/session/live", apiHandler.GetLiveStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions", apiHandler.ListSessionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}", apiHandler.GetSessionHandler).Methods(http.MethodGet)

	// 迁移
	router.HandleFunc("/api/migration/pending", apiHandler.MigrationPendingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/migration", apiHandler.RunMigrationHandler).Methods(http.MethodPost)

	// 导入导出
	router.HandleFunc("/api/export", apiHandler.ExportTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/import", apiHandler.ImportTracksHandler).Methods(http.MethodPost)

	// WebSocket 状态推送
	router.HandleFunc("/ws/state", apiHandler.StateFeedHandler)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("MagicDJ服务器启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始关闭服务器")

	cancelRoot()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭失败", logger.ErrorField(err))
	}

	// 退出前尽力把最终状态落盘
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPersist()
	if err := store.Persist(persistCtx); err != nil {
		logger.Error("退出前状态持久化失败", logger.ErrorField(err))
	}
}
