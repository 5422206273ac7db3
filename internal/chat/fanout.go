package chat

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Fanout carries room broadcasts to every gateway instance, including the
// one that published them.
type Fanout interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	// Listen delivers published payloads until ctx is done.
	Listen(ctx context.Context, deliver func(roomID string, payload []byte))
}

const roomChannelPrefix = "room:"

// RedisFanout uses one pub/sub channel per room and a single pattern
// subscription per instance.
type RedisFanout struct {
	rdb *redis.Client
}

func NewRedisFanout(rdb *redis.Client) *RedisFanout {
	return &RedisFanout{rdb: rdb}
}

func (f *RedisFanout) Publish(ctx context.Context, roomID string, payload []byte) error {
	return f.rdb.Publish(ctx, roomChannelPrefix+roomID, payload).Err()
}

func (f *RedisFanout) Listen(ctx context.Context, deliver func(roomID string, payload []byte)) {
	pubsub := f.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logrus.Warn("Redis subscription channel closed")
				return
			}
			deliver(strings.TrimPrefix(msg.Channel, roomChannelPrefix), []byte(msg.Payload))
		}
	}
}

// LocalFanout loops broadcasts back inside a single process.
type LocalFanout struct {
	frames chan localFrame
}

type localFrame struct {
	roomID  string
	payload []byte
}

func NewLocalFanout() *LocalFanout {
	return &LocalFanout{frames: make(chan localFrame, 256)}
}

func (f *LocalFanout) Publish(ctx context.Context, roomID string, payload []byte) error {
	select {
	case f.frames <- localFrame{roomID: roomID, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *LocalFanout) Listen(ctx context.Context, deliver func(roomID string, payload []byte)) {
	for {
		select {
		case <-ctx.Done():
			return
		case fr := <-f.frames:
			deliver(fr.roomID, fr.payload)
		}
	}
}
