package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"MagicDJ/model"
	"MagicDJ/storage"

	"github.com/gorilla/mux"
)

// 单个音频文件上传上限
const maxAudioUploadBytes = 50 << 20

// GetTracksHandler 返回全部音轨
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Tracks())
}

// AddTrackHandler 新建音轨
func (h *APIHandler) AddTrackHandler(w http.ResponseWriter, r *http.Request) {
	var track model.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if track.Name == "" {
		writeError(w, http.StatusBadRequest, "音轨名称不能为空")
		return
	}
	created := h.store.AddTrack(track)
	writeJSON(w, http.StatusCreated, created)
}

// UpdateTrackHandler 按字段更新音轨
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	var patch model.TrackPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if !h.store.UpdateTrack(trackID, patch) {
		writeError(w, http.StatusNotFound, "音轨不存在")
		return
	}
	track, _ := h.store.Track(trackID)
	writeJSON(w, http.StatusOK, track)
}

// RemoveTrackHandler 删除音轨及其音频数据
func (h *APIHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	if !h.store.RemoveTrack(trackID) {
		writeError(w, http.StatusNotFound, "音轨不存在")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// UploadTrackAudioHandler 上传音轨音频二进制数据
func (h *APIHandler) UploadTrackAudioHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	if _, ok := h.store.Track(trackID); !ok {
		writeError(w, http.StatusNotFound, "音轨不存在")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "读取请求体失败")
		return
	}
	if len(data) > maxAudioUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "音频文件过大")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "音频数据为空")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	if err := h.store.SetTrackAudio(r.Context(), trackID, data, contentType); err != nil {
		var quotaErr *storage.QuotaExceededError
		switch {
		case errors.As(err, &quotaErr):
			writeJSON(w, http.StatusInsufficientStorage, map[string]interface{}{
				"error":     "存储空间不足",
				"needed":    quotaErr.Needed,
				"remaining": quotaErr.Remaining,
			})
		case errors.Is(err, storage.ErrStorageUnavailable):
			writeError(w, http.StatusServiceUnavailable, "音频存储不可用")
		default:
			writeError(w, http.StatusInternalServerError, "音频保存失败")
		}
		return
	}

	track, _ := h.store.Track(trackID)
	writeJSON(w, http.StatusOK, track)
}

// GetTrackAudioHandler 获取音轨音频的播放引用
func (h *APIHandler) GetTrackAudioHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]
	url, err := h.audio.AcquireURL(r.Context(), trackID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "音频数据不存在")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "音频存储不可用")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
