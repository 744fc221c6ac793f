package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/prudhvinik1/caresync/internal/codec"
	"github.com/prudhvinik1/caresync/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrNoReceiver means the publish reached Redis but no device bridge was
// subscribed to take it.
var ErrNoReceiver = errors.New("no device subscribed to outbound channel")

// RedisSender publishes CBOR envelopes on a channel the device bridge
// subscribes to.
type RedisSender struct {
	client  *redis.Client
	channel string
}

func NewRedisSender(client *redis.Client, channel string) *RedisSender {
	return &RedisSender{client: client, channel: channel}
}

func (s *RedisSender) Send(ctx context.Context, msg models.Message) error {
	data, err := codec.EncodeMessage(msg)
	if err != nil {
		return err
	}

	receivers, err := s.client.Publish(ctx, s.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %T: %w", msg, err)
	}
	if receivers == 0 {
		return ErrNoReceiver
	}
	return nil
}
