// Package tcp_server accepts TCP chat connections and runs one chat session
// per connection over the framed line protocol.
package tcp_server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/protocol"
	"github.com/Yengas/go-chat-server/internal/room_manager"
	"github.com/Yengas/go-chat-server/internal/session"
)

// Server is the TCP listener. No connection cap is imposed here; operators
// bound it with FD limits.
type Server struct {
	manager      *room_manager.RoomManager
	writeTimeout time.Duration

	ln net.Listener
	wg sync.WaitGroup
}

// New creates a Server bound to the shared room manager. writeTimeout
// bounds each outbound event write per connection.
func New(manager *room_manager.RoomManager, writeTimeout time.Duration) *Server {
	return &Server{manager: manager, writeTimeout: writeTimeout}
}

// Listen binds the listener on addr.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	zap.L().Info("tcp.listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for every
// live session to finish its cleanup.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			zap.L().Warn("tcp.accept_failed", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	zap.L().Info("tcp.stopped")
	return nil
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	reader, writer := protocol.Split(conn, s.writeTimeout)
	sess := session.NewChatSession(s.manager, reader, writer, conn)

	if err := sess.Run(ctx); err != nil {
		zap.L().Debug("tcp.session_ended", zap.Error(err))
	}
}
