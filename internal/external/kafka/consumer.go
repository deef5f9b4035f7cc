package rewards

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// очередь обработчика; застрявшая партиция после ее заполнения останавливает чтение
const queueSize = 64

type MessageReader interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Обработчик сообщения. Ошибка - повтор того же сообщения,
// сообщения, которые обработать нельзя, обработчик пропускает сам и возвращает nil
type Handler func(ctx context.Context, msg kafka.Message) error

// Чтение топика пулом обработчиков.
// Партиция закреплена за одним обработчиком: сообщения партиции идут по порядку,
// следующее берется только после фиксации смещения предыдущего
type Consumer struct {
	reader  MessageReader
	logger  *zap.Logger
	workers int

	retryInitial time.Duration
	retryMax     time.Duration
}

func NewConsumer(reader MessageReader, logger *zap.Logger, workers int) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		reader:       reader,
		logger:       logger,
		workers:      workers,
		retryInitial: 100 * time.Millisecond,
		retryMax:     10 * time.Second,
	}
}

// Run читает до отмены ctx или ошибки чтения
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	queues := make([]chan kafka.Message, c.workers)
	wg := &sync.WaitGroup{}
	for i := range queues {
		queues[i] = make(chan kafka.Message, queueSize)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for msg := range in {
				c.process(ctx, msg, handle)
			}
		}(queues[i])
	}

	var err error
	for {
		msg, ferr := c.reader.Fetch(ctx)
		if ferr != nil {
			if !errors.Is(ferr, context.Canceled) {
				err = ferr
			}
			break
		}
		select {
		case queues[msg.Partition%c.workers] <- msg:
		case <-ctx.Done():
		}
	}
	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	return err
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, handle Handler) {
	// после остановки смещения не двигаются, сообщения придут снова
	if ctx.Err() != nil {
		return
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, handle(ctx, msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("kafka message failed, retrying",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		c.logger.Warn("kafka message not committed",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}
	if err := c.reader.Commit(context.WithoutCancel(ctx), msg); err != nil {
		c.logger.Error("kafka commit",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}
