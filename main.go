package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Yengas/go-chat-server/internal/config"
	"github.com/Yengas/go-chat-server/internal/http_server"
	"github.com/Yengas/go-chat-server/internal/room_manager"
	"github.com/Yengas/go-chat-server/internal/tcp_server"
	"github.com/Yengas/go-chat-server/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Room seed file
	metadatas, err := config.LoadRoomsFile(cfg.RoomsFile)
	if err != nil {
		Log.Fatal("Failed to load rooms file", zap.Error(err))
	}

	// 4. Room registry, fixed for the process lifetime
	manager, err := room_manager.NewRoomManager(metadatas, cfg.BusCapacity)
	if err != nil {
		Log.Fatal("Failed to build room registry", zap.Error(err))
	}
	Log.Info("Rooms seeded", zap.Int("count", len(metadatas)))

	// 5. TCP chat listener
	tcpSrv := tcp_server.New(manager, cfg.WriteTimeout)

	// 6. HTTP + WS server
	wsHandler := ws.NewHandler(ctx, manager, cfg.WriteTimeout)
	httpSrv := http_server.NewHttpServer(ctx, cfg.HttpServerPort, manager, wsHandler)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return tcpSrv.ListenAndServe(groupCtx, cfg.BindAddr)
	})
	group.Go(func() error {
		return httpSrv.Start()
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return httpSrv.Dispose()
	})

	if err := group.Wait(); err != nil {
		Log.Fatal("Server failed", zap.Error(err))
	}

	manager.Close()
	Log.Info("Server shut down")
}
