package server

import (
	"net/http"
	"time"

	"MagicDJ/logger"

	"github.com/gorilla/websocket"
)

var stateUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// StateFeedHandler 升级为WebSocket连接，状态变更时推送完整快照
func (h *APIHandler) StateFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := stateUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// 变更信号做合并：推送期间的多次变更只触发一次补发
	signal := make(chan struct{}, 1)
	unsubscribe := h.store.Subscribe(func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// 读取端只用于感知连接关闭
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeSnapshot := func() error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(h.store.Snapshot())
	}

	// 连接建立后先发一次全量快照
	if err := writeSnapshot(); err != nil {
		logger.Debug("WebSocket初始快照发送失败", logger.ErrorField(err))
		return
	}

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-signal:
			if err := writeSnapshot(); err != nil {
				logger.Debug("WebSocket快照推送失败", logger.ErrorField(err))
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
