package api

import (
	"net/http"
	"time"

	"learnapp/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventsWriteWait = 10 * time.Second
	eventsPongWait  = 60 * time.Second
	eventsPingEvery = (eventsPongWait * 9) / 10
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stateEvent 推送给客户端的状态事件
type stateEvent struct {
	Type     string            `json:"type"`
	Snapshot pipeline.Snapshot `json:"snapshot"`
}

// eventsHandler 通过websocket推送会话状态变化，连接建立后先推送当前状态
func (s *Server) eventsHandler(c *gin.Context) {
	session := entryFrom(c).session

	conn, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket升级失败")
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := session.Subscribe()
	defer unsubscribe()

	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	// 客户端不发送业务消息，读循环只用于处理pong和检测断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(stateEvent{Type: "snapshot", Snapshot: snap}); err != nil {
				s.logger.Debug().Err(err).Msg("推送状态失败")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
