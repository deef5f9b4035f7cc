// Job - выпуск купонов по запросам из RabbitMQ
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/glkeru/loyalty/rewards/internal/app"
	"github.com/glkeru/loyalty/rewards/internal/config"
	rabbit "github.com/glkeru/loyalty/rewards/internal/external/rabbitmq"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	"go.uber.org/zap"
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
	if err := cfg.Require("REWARDS_DB_URL", "REWARDS_RABBIT_URL"); err != nil {
		panic(err)
	}

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer(cfg.RabbitURL, cfg.MintQueue, cfg.MintReplyQueue, cfg.Workers)
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// services
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	// os signals
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go worker(ctx, a.Coupons, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, serv *services.CouponService, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-reader.Msg:
			if !ok {
				return
			}
			rabbit.HandleMint(ctx, msg.Body, msg, serv, reader.Processed, logger)
		}
	}
}
