package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"DailyPrompt/config"
	"DailyPrompt/pkg/logger"
)

var (
	conn   *amqp.Connection
	connMu sync.RWMutex
)

func Init() error {
	c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to connect rabbitmq: %w", err)
	}

	connMu.Lock()
	conn = c
	connMu.Unlock()

	if err := DeclareTopology(); err != nil {
		return err
	}

	logger.Logger.Info("RabbitMQ initialized", zap.String("component", "rabbitmq"))
	return nil
}

func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil {
		_ = publisherCh.Close()
		publisherCh = nil
	}
	pubMutex.Unlock()

	connMu.Lock()
	c := conn
	conn = nil
	connMu.Unlock()

	if c == nil || c.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
