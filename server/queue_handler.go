package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"MagicDJ/model"

	"github.com/gorilla/mux"
)

func parseChannel(r *http.Request) (model.ChannelType, bool) {
	channel := model.ChannelType(mux.Vars(r)["channel"])
	for _, c := range model.AllChannelTypes {
		if c == channel {
			return channel, true
		}
	}
	return "", false
}

func parseIndex(r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// EnqueueTrackHandler 向通道队列追加音轨
func (h *APIHandler) EnqueueTrackHandler(w http.ResponseWriter, r *http.Request) {
	channel, ok := parseChannel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "未知的通道类型")
		return
	}
	var req struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if _, exists := h.store.Track(req.TrackID); !exists {
		writeError(w, http.StatusNotFound, "音轨不存在")
		return
	}
	item := h.store.EnqueueTrack(channel, req.TrackID)
	writeJSON(w, http.StatusCreated, item)
}

// RemoveQueueItemHandler 按下标移除队列项
func (h *APIHandler) RemoveQueueItemHandler(w http.ResponseWriter, r *http.Request) {
	channel, ok := parseChannel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "未知的通道类型")
		return
	}
	index, ok := parseIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "无效的下标")
		return
	}
	if !h.store.RemoveQueueItem(channel, index) {
		writeError(w, http.StatusNotFound, "队列项不存在")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// MoveQueueItemHandler 移动队列项位置
func (h *APIHandler) MoveQueueItemHandler(w http.ResponseWriter, r *http.Request) {
	channel, ok := parseChannel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "未知的通道类型")
		return
	}
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if !h.store.MoveQueueItem(channel, req.From, req.To) {
		writeError(w, http.StatusBadRequest, "移动位置越界")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": true})
}

// SetChannelStateHandler 更新通道播放状态
func (h *APIHandler) SetChannelStateHandler(w http.ResponseWriter, r *http.Request) {
	channel, ok := parseChannel(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "未知的通道类型")
		return
	}
	var state model.ChannelState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	h.store.SetChannelState(channel, state)
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// AddCueItemHandler 向提示列表追加音轨
func (h *APIHandler) AddCueItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if _, exists := h.store.Track(req.TrackID); !exists {
		writeError(w, http.StatusNotFound, "音轨不存在")
		return
	}
	item := h.store.AddCueItem(req.TrackID)
	writeJSON(w, http.StatusCreated, item)
}

// RemoveCueItemHandler 按下标移除提示项，游标随之调整
func (h *APIHandler) RemoveCueItemHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "无效的下标")
		return
	}
	if !h.store.RemoveCueItem(index) {
		writeError(w, http.StatusNotFound, "提示项不存在")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// MoveCueItemHandler 移动提示项位置
func (h *APIHandler) MoveCueItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if !h.store.MoveCueItem(req.From, req.To) {
		writeError(w, http.StatusBadRequest, "移动位置越界")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": true})
}

// SetCuePositionHandler 设置提示列表当前位置，-1表示无进行项
func (h *APIHandler) SetCuePositionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}
	if !h.store.SetCuePosition(req.Position) {
		writeError(w, http.StatusBadRequest, "位置越界")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}
