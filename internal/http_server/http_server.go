// Package http_server serves the small HTTP surface next to the TCP
// listener: a health check, the room list snapshot, and the WebSocket chat
// endpoint.
package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/room_manager"
	"github.com/Yengas/go-chat-server/internal/ws"
)

type httpServer struct {
	listenPort uint16
	srv        http.Server
	manager    *room_manager.RoomManager
	wsHandler  *ws.Handler
	ctx        context.Context
}

// NewHttpServer wires the HTTP endpoints against the shared room manager.
func NewHttpServer(ctx context.Context, listenPort uint16, manager *room_manager.RoomManager, wsHandler *ws.Handler) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		manager:    manager,
		wsHandler:  wsHandler,
		ctx:        ctx,
	}
}

type roomResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UserCount   int    `json:"user_count"`
}

// Start serves until Dispose is called or the listener fails.
func (h *httpServer) Start() error {
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	routerEngine := gin.New()
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	routerEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routerEngine.GET("/rooms", func(c *gin.Context) {
		details := h.manager.ListRooms()
		out := make([]roomResponse, 0, len(details))
		for _, d := range details {
			out = append(out, roomResponse{
				Name:        d.Name,
				Description: d.Description,
				UserCount:   d.UserCount,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	// websocket endpoint
	routerEngine.GET("/ws", h.wsHandler.Handle)

	h.srv = http.Server{Handler: routerEngine}

	zap.L().Info("http.listening", zap.String("addr", ln.Addr().String()))
	if err := h.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down, waiting up to 10 s for
// in-flight requests.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http.dispose", zap.Error(err))
		return err
	}
	return nil
}
