package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeGateway = "gateway"
	ExchangeDead    = "gateway.dlx"

	QueueInbound     = "gateway.inbound"
	QueueInboundDead = "gateway.inbound.dlq"

	RoutingKeyInbound = "inbound"
)

// DeclareTopology 声明入站消息的交换机和队列，重复声明是幂等的
func DeclareTopology() error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	for _, ex := range []string{ExchangeGateway, ExchangeDead} {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	if _, err := ch.QueueDeclare(QueueInboundDead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueInboundDead, err)
	}
	if err := ch.QueueBind(QueueInboundDead, RoutingKeyInbound, ExchangeDead, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueInboundDead, err)
	}

	if _, err := ch.QueueDeclare(QueueInbound, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDead,
		"x-dead-letter-routing-key": RoutingKeyInbound,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueInbound, err)
	}
	if err := ch.QueueBind(QueueInbound, RoutingKeyInbound, ExchangeGateway, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueInbound, err)
	}

	return nil
}
