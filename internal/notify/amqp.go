package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Publisher 是 *amqp.Channel 的发布子集
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender 把邮件以 JSON 投递到交换机，由外部 mailer 消费
type AMQPSender struct {
	pub        Publisher
	exchange   string
	routingKey string
}

func NewAMQPSender(pub Publisher, exchange, routingKey string) *AMQPSender {
	return &AMQPSender{pub: pub, exchange: exchange, routingKey: routingKey}
}

func (s *AMQPSender) Send(_ context.Context, m Message) error {
	const op = "notify.AMQPSender.Send"
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = s.pub.Publish(s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DialAMQP 带重试的连接，并声明 direct 交换机
func DialAMQP(url, exchange string, retries int, delay time.Duration) (*amqp.Connection, *amqp.Channel, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i <= retries; i++ {
		if conn, err = amqp.Dial(url); err == nil {
			break
		}
		time.Sleep(delay)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return conn, ch, nil
}
