package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultRabbitMQExchange 是任务事件的默认交换机。
const DefaultRabbitMQExchange = "openagents.task-events"

// RabbitMQConfig 描述 RabbitMQ Sink 的连接参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// RabbitMQSink 将事件发布到 fanout 交换机。
type RabbitMQSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQSink 连接 RabbitMQ 并声明交换机。
func NewRabbitMQSink(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultRabbitMQExchange
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
	}
	return &RabbitMQSink{conn: conn, ch: ch, exchange: exchange}, nil
}

// Name 返回 rabbitmq。
func (s *RabbitMQSink) Name() string { return "rabbitmq" }

// Exchange 返回交换机名称。
func (s *RabbitMQSink) Exchange() string { return s.exchange }

// Publish 发布 JSON 编码的事件。amqp channel 不支持并发发布，因此加锁。
func (s *RabbitMQSink) Publish(ctx context.Context, event Event) error {
	if s == nil || s.ch == nil {
		return errors.New("RabbitMQ Sink 未初始化")
	}
	payload, err := event.Marshal()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx, s.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.TaskID,
		Timestamp:   event.OccurredAt,
		Type:        event.Type,
		Body:        payload,
	})
}

// Close 关闭 channel 与连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}

var _ Sink = (*RabbitMQSink)(nil)
