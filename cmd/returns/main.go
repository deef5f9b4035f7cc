// Job - Обработка возвратов: сторно начисления по заказу
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/glkeru/loyalty/rewards/internal/app"
	"github.com/glkeru/loyalty/rewards/internal/config"
	kafka "github.com/glkeru/loyalty/rewards/internal/external/kafka"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	kafkago "github.com/segmentio/kafka-go"
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
	if err := cfg.Require("REWARDS_DB_URL", "REWARDS_KAFKA_BROKERS"); err != nil {
		panic(err)
	}

	// kafka
	reader, err := kafka.GetNewReader(cfg.KafkaBrokers, cfg.ReturnedTopic, cfg.KafkaGroup+"_returns")
	if err != nil {
		panic(err)
	}
	defer reader.CloseReader()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// services
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	interrrupt := make(chan os.Signal, 1)
	signal.Notify(interrrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrrupt
		cancel()
	}()

	consumer := kafka.NewConsumer(reader, logger, cfg.Workers)
	err = consumer.Run(ctx, func(ctx context.Context, msg kafkago.Message) error {
		evt, err := kafka.DecodeReturned(msg)
		if err != nil {
			logger.Error("decode return", zap.Error(err), zap.Int64("offset", msg.Offset))
			return nil
		}
		if _, err := a.Loyalty.ReverseOrder(ctx, evt.BuyerID, evt.OrderID.String()); err != nil {
			// баллы уже потрачены - повтор не поможет
			if model.IsDomainError(err) {
				logger.Error("return skipped",
					zap.String("order", evt.OrderID.String()),
					zap.String("user", evt.BuyerID),
					zap.Error(err),
				)
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		logger.Error("kafka consumer", zap.Error(err))
	}
}
