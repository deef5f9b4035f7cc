// Job - обработка завершенных заказов
// Опрос Kafka -> начисление баллов и завершение реферала
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

// Job - Обработка заказов
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
	reader, err := kafka.GetNewReader(cfg.KafkaBrokers, cfg.CompletedTopic, cfg.KafkaGroup)
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

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	consumer := kafka.NewConsumer(reader, logger, cfg.Workers)
	err = consumer.Run(ctx, func(ctx context.Context, msg kafkago.Message) error {
		evt, err := kafka.DecodeCompleted(msg)
		if err != nil {
			// битое сообщение не обработать повторно
			logger.Error("decode order", zap.Error(err), zap.Int64("offset", msg.Offset))
			return nil
		}
		if err := a.Completion.HandleCompleted(ctx, evt); err != nil {
			if model.IsDomainError(err) {
				logger.Error("order completion skipped",
					zap.String("order", evt.OrderID.String()),
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
