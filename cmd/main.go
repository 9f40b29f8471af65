package main

import (
	"flag"
	"net"
	"os"
	"sync/atomic"

	"github.com/blendle/zapdriver"
	"github.com/muxable/callback/internal/server"
	"github.com/muxable/callback/pkg/callback"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func logger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zapdriver.NewProduction()
	} else {
		return zap.NewDevelopment()
	}
}

func logEvent(event any, prefix string) {
	zap.L().Info(prefix, zap.Any("event", event))
}

func countEvent(_ any, n *atomic.Int64) {
	zap.L().Info("count", zap.Int64("value", n.Add(1)))
}

func main() {
	addr := flag.String("addr", ":50051", "The address to listen on")
	flag.Parse()

	logger, err := logger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	if port := os.Getenv("PORT"); port != "" {
		*addr = ":" + port
	}

	callbacks := server.NewCallbacksServer()

	logs := callback.NewRegistry[any, string]()
	defer logs.Close()

	logBinding, err := logs.Register(logEvent, "event")
	if err != nil {
		panic(err)
	}
	if err := callbacks.Bind("log", logBinding); err != nil {
		panic(err)
	}

	var count atomic.Int64
	countBinding, err := callback.Register[any, *atomic.Int64](countEvent, &count)
	if err != nil {
		panic(err)
	}
	if err := callbacks.Bind("count", countBinding); err != nil {
		panic(err)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		panic(err)
	}

	s := grpc.NewServer()

	server.RegisterCallbacksServer(s, callbacks)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())

	zap.L().Info("starting callback server", zap.String("addr", lis.Addr().String()))

	if err := s.Serve(lis); err != nil {
		panic(err)
	}
}
