package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Чтение событий заказов. Смещение фиксируется после обработки (Commit)
type KafkaOrder struct {
	reader *kafka.Reader
}

func GetNewReader(brokers []string, topic string, group string) (*KafkaOrder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("env REWARDS_KAFKA_BROKERS is not set")
	}
	kafkaconfig := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	}
	return &KafkaOrder{kafka.NewReader(kafkaconfig)}, nil
}

func (k *KafkaOrder) Fetch(ctx context.Context) (kafka.Message, error) {
	return k.reader.FetchMessage(ctx)
}

func (k *KafkaOrder) Commit(ctx context.Context, msg kafka.Message) error {
	return k.reader.CommitMessages(ctx, msg)
}

func (k *KafkaOrder) CloseReader() {
	k.reader.Close()
}

func DecodeCompleted(msg kafka.Message) (model.OrderCompletedEvent, error) {
	var evt model.OrderCompletedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return model.OrderCompletedEvent{}, err
	}
	if evt.OrderID == uuid.Nil {
		return model.OrderCompletedEvent{}, fmt.Errorf("user %s: orderId is empty", evt.BuyerID)
	}
	if evt.BuyerID == "" {
		return model.OrderCompletedEvent{}, fmt.Errorf("order %s: userId is empty", evt.OrderID)
	}
	return evt, nil
}

func DecodeReturned(msg kafka.Message) (model.OrderReturned, error) {
	var evt model.OrderReturned
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return model.OrderReturned{}, err
	}
	if evt.OrderID == uuid.Nil {
		return model.OrderReturned{}, fmt.Errorf("user %s: orderId is empty", evt.BuyerID)
	}
	if evt.BuyerID == "" {
		return model.OrderReturned{}, fmt.Errorf("order %s: userId is empty", evt.OrderID)
	}
	return evt, nil
}

// Публикация событий завершения заказа, ключ - ID заказа
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("env REWARDS_KAFKA_BROKERS is not set")
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}, nil
}

func (p *Producer) Close() error { return p.w.Close() }

func (p *Producer) PublishCompleted(ctx context.Context, evt model.OrderCompletedEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.OrderID.String()),
		Value: b,
	})
}
