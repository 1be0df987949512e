// Package kafka 提供了向 Kafka 发布业务事件的生产者。
package kafka

import (
	"context"
	"encoding/json"

	"alpha-chat-go/internal/config"

	"github.com/segmentio/kafka-go"
)

// Producer 封装了一个面向单 topic 的事件生产者。
// 事件发布是尽力而为的：失败只记录日志，从不阻塞请求链路。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish 将事件序列化为 JSON 并写入 topic。
func (p *Producer) Publish(ctx context.Context, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}
