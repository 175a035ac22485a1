package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"MagicDJ/core/session"
	"MagicDJ/logger"

	"github.com/gorilla/mux"
)

// StartSessionHandler 开启演出会话，已有活动会话时直接返回它
func (h *APIHandler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	record := h.store.StartSession()
	writeJSON(w, http.StatusOK, record)
}

// StopSessionHandler 结束当前会话并归档
func (h *APIHandler) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	record := h.store.StopSession()
	if record == nil {
		writeError(w, http.StatusConflict, "没有进行中的会话")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// LogModeSwitchHandler 记录一次模式切换
func (h *APIHandler) LogModeSwitchHandler(w http.ResponseWriter, r *http.Request) {
	h.store.LogModeSwitch()
	writeJSON(w, http.StatusOK, map[string]bool{"logged": true})
}

// GetLiveStatusHandler 读取实时会话心跳，供外部面板轮询
func (h *APIHandler) GetLiveStatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeError(w, http.StatusServiceUnavailable, "实时会话缓存未启用")
		return
	}
	status, err := h.live.Get(r.Context())
	if err != nil {
		logger.Error("读取实时会话心跳失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "读取实时会话心跳失败")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "当前没有进行中的会话")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListSessionsHandler 返回最近归档的会话记录
func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "会话归档功能未启用")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.sessions.List(r.Context(), limit)
	if err != nil {
		logger.Error("查询会话记录失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "查询会话记录失败")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetSessionHandler 按id查询归档的会话记录
func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "会话归档功能未启用")
		return
	}
	record, err := h.sessions.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		logger.Error("查询会话记录失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "查询会话记录失败")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "会话记录不存在")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// MigrationPendingHandler 返回待迁移的旧格式音轨数量
func (h *APIHandler) MigrationPendingHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "读取旧格式状态失败")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": count,
		"status":  h.engine.Status(),
	})
}

// RunMigrationHandler 触发旧格式音频迁移，可重复执行直至收敛
func (h *APIHandler) RunMigrationHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Migrate(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"status": h.engine.Status(),
	})
}

// ExportTracksHandler 导出音轨配置文件，音频内联为base64
func (h *APIHandler) ExportTracksHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.ExportTracks(r.Context())
	if err != nil {
		logger.Error("导出音轨配置失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "导出失败")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="magicdj-tracks.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("写出导出文件失败", logger.ErrorField(err))
	}
}

// ImportTracksHandler 导入音轨配置文件，整体校验通过后才写入
func (h *APIHandler) ImportTracksHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "读取请求体失败")
		return
	}
	if len(data) > maxAudioUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "配置文件过大")
		return
	}

	count, err := h.store.ImportTracks(r.Context(), data)
	if err != nil {
		if errors.Is(err, session.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("导入音轨配置失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "导入失败")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}
