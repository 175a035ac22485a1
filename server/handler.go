package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"MagicDJ/cache"
	"MagicDJ/config"
	"MagicDJ/core/migrate"
	"MagicDJ/core/opqueue"
	"MagicDJ/core/session"
	"MagicDJ/logger"
	"MagicDJ/model"
	"MagicDJ/repository"
	"MagicDJ/storage"
)

// APIHandler 聚合控制台所有HTTP接口的依赖
type APIHandler struct {
	store    *session.Store
	audio    *storage.AudioStore
	engine   *migrate.Engine
	queue    *opqueue.Queue
	sessions repository.SessionRepository
	live     *cache.LiveSessionCache
	cfg      *config.Config

	// 防抖排空计时器：每个缓冲批次只挂一个
	drainMu        sync.Mutex
	drainScheduled bool
}

func NewAPIHandler(
	store *session.Store,
	audio *storage.AudioStore,
	engine *migrate.Engine,
	queue *opqueue.Queue,
	sessions repository.SessionRepository,
	live *cache.LiveSessionCache,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		store:    store,
		audio:    audio,
		engine:   engine,
		queue:    queue,
		sessions: sessions,
		live:     live,
		cfg:      cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Error("响应编码失败", logger.ErrorField(err))
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetStateHandler 返回当前完整状态快照
func (h *APIHandler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// GetQuotaHandler 返回存储配额与告警级别
func (h *APIHandler) GetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	quota := h.audio.GetQuota(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quota":        quota,
		"warningLevel": h.audio.WarningLevel(quota.Percentage),
	})
}

// UpdateSettingsHandler 浅合并更新DJ设置
func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	h.store.UpdateSettings(patch)
	writeJSON(w, http.StatusOK, h.store.Snapshot().Settings)
}

// SetMasterVolumeHandler 设置主音量
func (h *APIHandler) SetMasterVolumeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MasterVolume float64 `json:"masterVolume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	h.store.SetMasterVolume(req.MasterVolume)
	writeJSON(w, http.StatusOK, map[string]float64{"masterVolume": h.store.Snapshot().MasterVolume})
}

// ClearStorageErrorHandler 清除界面上展示的持久化错误
func (h *APIHandler) ClearStorageErrorHandler(w http.ResponseWriter, r *http.Request) {
	h.store.ClearStorageError()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// SubmitOperationHandler 提交控制操作。窗口外的操作立即执行，
// 窗口内的进入优先级缓冲，由排空计时器统一仲裁。
func (h *APIHandler) SubmitOperationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type    model.OperationType `json:"type"`
		TrackID string              `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "未知的操作类型: "+string(req.Type))
		return
	}

	if h.queue.QueueOperation(req.Type, req.TrackID) {
		h.store.LogOperation(req.Type, req.TrackID)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"executed": true,
			"type":     req.Type,
		})
		return
	}

	h.scheduleDrain()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"executed": false,
		"buffered": h.queue.BufferedCount(),
	})
}

// scheduleDrain 在窗口结束后排空缓冲并执行胜出的操作
func (h *APIHandler) scheduleDrain() {
	h.drainMu.Lock()
	defer h.drainMu.Unlock()
	if h.drainScheduled {
		return
	}
	h.drainScheduled = true

	time.AfterFunc(h.queue.Window()+5*time.Millisecond, func() {
		h.drainMu.Lock()
		h.drainScheduled = false
		h.drainMu.Unlock()

		op := h.queue.ProcessOperationQueue()
		if op == nil {
			return
		}
		logger.Info("排空操作缓冲",
			logger.String("type", string(op.Type)),
			logger.Int("priority", op.Priority),
			logger.Duration("window", h.queue.Window()))
		h.store.LogOperation(op.Type, op.TrackID)
	})
}

// ClearOperationsHandler 丢弃缓冲中的全部操作
func (h *APIHandler) ClearOperationsHandler(w http.ResponseWriter, r *http.Request) {
	h.queue.ClearOperationQueue()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
