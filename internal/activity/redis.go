package activity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// RedisPublisher publishes activity events to a Redis pub/sub channel from a
// single background worker. Events are dropped when the buffer is full.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewRedisPublisher(rdb *redis.Client, channel string, buffer int, logger *zap.Logger) *RedisPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *RedisPublisher) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.events <- ev:
	default:
		p.logger.Warn("activity buffer full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("room_id", ev.RoomID))
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// worker to exit. It does not close the Redis client.
func (p *RedisPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.events)
		p.mu.Unlock()
	})
	<-p.done
	return nil
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for ev := range p.events {
		p.send(ev)
	}
}

func (p *RedisPublisher) send(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal activity event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish activity event",
			zap.String("channel", p.channel),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}
