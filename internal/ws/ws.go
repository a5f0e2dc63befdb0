// Package ws exposes the chat protocol over WebSocket: one command or event
// frame per message, same wire format as the TCP listener. Sessions created
// here share the room manager with TCP sessions, so users on either
// transport meet in the same rooms.
package ws

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/protocol"
	"github.com/Yengas/go-chat-server/internal/room_manager"
	"github.com/Yengas/go-chat-server/internal/session"
)

const maxMessageSize = 64 * 1024

// Handler upgrades HTTP requests to WebSocket chat sessions.
type Handler struct {
	ctx          context.Context
	manager      *room_manager.RoomManager
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler creates the /ws endpoint handler. Sessions live until the
// client disconnects or ctx is cancelled.
func NewHandler(ctx context.Context, manager *room_manager.RoomManager, writeTimeout time.Duration) *Handler {
	return &Handler{
		ctx:          ctx,
		manager:      manager,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle is the gin entry point.
func (h *Handler) Handle(ginCtx *gin.Context) {
	conn, err := h.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sess := session.NewChatSession(
		h.manager,
		&commandReader{conn: conn},
		&eventWriter{conn: conn, writeTimeout: h.writeTimeout},
		conn,
	)

	go func() {
		if err := sess.Run(h.ctx); err != nil {
			zap.L().Debug("ws.session_ended", zap.Error(err))
		}
	}()
}

// commandReader adapts the websocket read side to the protocol contract.
type commandReader struct {
	conn *websocket.Conn
}

func (r *commandReader) ReadCommand() (protocol.Command, error) {
	_, data, err := r.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return protocol.DecodeCommand(data)
}

// eventWriter adapts the websocket write side to the protocol contract.
// Writes are serialized by a mutex and bounded by a write deadline.
type eventWriter struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (w *eventWriter) WriteEvent(ev protocol.Event) error {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}
