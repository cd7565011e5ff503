package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const publishTimeout = 2 * time.Second

// redisEnvelope wraps an event with the originating instance ID
// so that a node can skip its own published events.
type redisEnvelope struct {
	InstanceID string       `json:"instance_id"`
	Event      events.Event `json:"event"`
}

// RedisRelay relays lifecycle events between processes via Redis pub/sub.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	target     LocalTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisRelay creates a relay delivering remote events to target.
func NewRedisRelay(cfg *RedisConfig, target LocalTarget, logger zerolog.Logger) *RedisRelay {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisRelay{
		client:     client,
		channel:    cfg.Channel(),
		instanceID: uuid.New().String(),
		target:     target,
		logger:     logger.With().Str("component", "redis-relay").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this process on the relay channel.
func (r *RedisRelay) InstanceID() string { return r.instanceID }

// Start subscribes to the relay channel and begins forwarding events.
func (r *RedisRelay) Start() error {
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return err
	}

	sub := r.client.Subscribe(r.ctx, r.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(r.ctx); err != nil {
		_ = sub.Close()
		return err
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.listen(sub)

	r.logger.Info().
		Str("instance_id", r.instanceID).
		Str("channel", r.channel).
		Msg("redis relay started")
	return nil
}

// Publish sends an event to all other instances.
func (r *RedisRelay) Publish(ev events.Event) error {
	data, err := r.encode(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}

// Available reports whether the relay is connected.
func (r *RedisRelay) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *RedisRelay) encode(ev events.Event) ([]byte, error) {
	return json.Marshal(redisEnvelope{InstanceID: r.instanceID, Event: ev})
}

// listen reads the subscription and forwards events to the local target.
func (r *RedisRelay) listen(sub *redis.PubSub) {
	defer r.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleRedisMessage(msg.Payload)
		case <-r.ctx.Done():
			return
		}
	}
}

// handleRedisMessage decodes an envelope and forwards non-self events.
func (r *RedisRelay) handleRedisMessage(payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode relayed event")
		return
	}

	// Skip events that originated from this instance.
	if env.InstanceID == r.instanceID {
		return
	}

	r.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("event", env.Event.Name).
		Str("source", env.Event.Source).
		Msg("relaying event from redis")

	r.target.EmitLocal(env.Event)
}
