package rewards

import (
	"context"
	"encoding/json"
	"fmt"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Очередь запросов на выпуск купонов и очередь ответов
type RabbitConsumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	Msg      <-chan amqp.Delivery
	chout    *amqp.Channel
	queueout string
}

func NewRabbitConsumer(url string, queue string, queueout string, prefetch int) (rabbit *RabbitConsumer, err error) {
	if url == "" {
		return nil, fmt.Errorf("env REWARDS_RABBIT_URL is not set")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	// канал для входящих
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// канал для исходящих
	chout, err := conn.Channel()
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	_, err = chout.QueueDeclare(
		queueout, // name
		true,     // durable
		false,    // delete when unused
		false,    // exclusive
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	// без подтверждения брокер держит не больше prefetch сообщений на консьюмера
	if err = ch.Qos(prefetch, 0, false); err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	msg, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitConsumer{conn, ch, msg, chout, queueout}, nil
}

func (r *RabbitConsumer) Close() {
	r.chout.Close()
	r.ch.Close()
	r.conn.Close()
}

// Запрос на выпуск купона
type MintRequest struct {
	RequestId string `json:"request_id"`
	UserId    string `json:"user_id"`
}

// Ответ на запрос
type MintConfirm struct {
	RequestId  string `json:"request_id"`
	Success    bool   `json:"success"`
	CouponCode string `json:"coupon_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func DecodeMintRequest(body []byte) (MintRequest, error) {
	var req MintRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return MintRequest{}, err
	}
	if req.UserId == "" {
		return MintRequest{}, fmt.Errorf("mint request %s: user_id is empty", req.RequestId)
	}
	return req, nil
}

// подтверждение выпуска
func (r *RabbitConsumer) Processed(ctx context.Context, confirm MintConfirm) error {
	msg, err := json.Marshal(confirm)
	if err != nil {
		return err
	}

	return r.chout.PublishWithContext(ctx,
		"",         // exchange
		r.queueout, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: confirm.RequestId,
			Body:          msg,
		})
}

// Подтверждение доставки, amqp.Delivery
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple bool, requeue bool) error
	Reject(requeue bool) error
}

type Minter interface {
	Mint(ctx context.Context, user string, requestID string) (model.Coupon, error)
}

// Обработка запроса на выпуск. Сообщение подтверждается только после отправки ответа:
// сбой инфраструктуры возвращает его в очередь, а повтор с тем же request_id купон второй раз не выпускает
func HandleMint(ctx context.Context, body []byte, ack Acknowledger, minter Minter, reply func(context.Context, MintConfirm) error, logger *zap.Logger) {
	req, err := DecodeMintRequest(body)
	if err != nil {
		logger.Error("decode mint request", zap.Error(err))
		if err := ack.Reject(false); err != nil {
			logger.Error("reject", zap.Error(err))
		}
		return
	}

	confirm := MintConfirm{RequestId: req.RequestId}
	coupon, err := minter.Mint(ctx, req.UserId, req.RequestId)
	switch {
	case err == nil:
		confirm.Success = true
		confirm.CouponCode = coupon.Code
	case model.IsDomainError(err):
		logger.Warn("mint rejected", zap.String("user", req.UserId), zap.String("request", req.RequestId), zap.Error(err))
		confirm.Error = err.Error()
	default:
		logger.Error("mint", zap.String("user", req.UserId), zap.String("request", req.RequestId), zap.Error(err))
		requeue(ack, logger)
		return
	}

	if err := reply(ctx, confirm); err != nil {
		logger.Error("mint confirm", zap.String("request", req.RequestId), zap.Error(err))
		requeue(ack, logger)
		return
	}
	if err := ack.Ack(false); err != nil {
		logger.Error("ack", zap.String("request", req.RequestId), zap.Error(err))
	}
}

func requeue(ack Acknowledger, logger *zap.Logger) {
	if err := ack.Nack(false, true); err != nil {
		logger.Error("nack", zap.Error(err))
	}
}
