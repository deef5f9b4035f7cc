// gRPC server - обработка запросов на получение баланса и истории транзакций
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	serv "github.com/glkeru/loyalty/rewards/internal/api/grpc"
	"github.com/glkeru/loyalty/rewards/internal/app"
	"github.com/glkeru/loyalty/rewards/internal/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}
	if err := cfg.Require("REWARDS_DB_URL"); err != nil {
		panic(err)
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		panic(err)
	}

	interrrupt := make(chan os.Signal, 1)
	signal.Notify(interrrupt, os.Interrupt, syscall.SIGTERM)

	grpcServer := grpc.NewServer()
	serv.RegisterPointsServer(grpcServer, serv.NewPointsService(a.Loyalty, logger))

	go func() {
		err := grpcServer.Serve(lis)
		if err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	<-interrrupt
	grpcServer.GracefulStop()
}
