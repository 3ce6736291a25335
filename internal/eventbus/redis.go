package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"group-chat/internal/domain"
)

type redisPubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) pubSubConn
	PubSubNumSub(ctx context.Context, channels ...string) *redis.MapStringIntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// pubSubConn es la parte de *redis.PubSub que usa una suscripción.
type pubSubConn interface {
	Receive(ctx context.Context) (interface{}, error)
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Unsubscribe(ctx context.Context, channels ...string) error
	Close() error
}

type redisClient struct {
	*redis.Client
}

func (c redisClient) Subscribe(ctx context.Context, channels ...string) pubSubConn {
	return c.Client.Subscribe(ctx, channels...)
}

// RedisBus implementa Bus sobre Redis Pub/Sub. No es dueño del cliente:
// Close cierra las suscripciones, no la conexión.
type RedisBus struct {
	client redisPubSubClient
	logger *zap.Logger
	buffer int

	mu   sync.Mutex
	subs map[*redisSub]struct{}
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return newRedisBus(redisClient{client}, logger)
}

func newRedisBus(client redisPubSubClient, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client: client,
		logger: logger,
		buffer: defaultBuffer,
		subs:   make(map[*redisSub]struct{}),
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) (int, error) {
	n, err := b.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: publish %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return int(n), nil
}

// Subscribe espera la confirmación del servidor antes de devolver el handle,
// así un fallo de suscripción aparece acá y no como un canal mudo.
func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	topics = lo.Uniq(lo.Compact(topics))
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationFailed, errNoTopics)
	}

	ps := b.client.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", domain.ErrBrokerUnavailable, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &redisSub{
		bus:    b,
		ps:     ps,
		ch:     make(chan Delivery, b.buffer),
		done:   make(chan struct{}),
		cancel: cancel,
		topics: lo.SliceToMap(topics, func(t string) (string, struct{}) { return t, struct{}{} }),
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump(readCtx)
	return s, nil
}

func (b *RedisBus) SubscriberCount(ctx context.Context, topic string) (int, error) {
	counts, err := b.client.PubSubNumSub(ctx, topic).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: numsub %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return int(counts[topic]), nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := lo.Keys(b.subs)
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (b *RedisBus) forget(s *redisSub) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

type redisSub struct {
	bus    *RedisBus
	ps     pubSubConn
	ch     chan Delivery
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	err    error

	topicsMu sync.Mutex
	topics   map[string]struct{}
}

// pump es el único escritor de ch y lo cierra al salir. Un error de lectura
// que no viene de Close se trata como conexión perdida.
func (s *redisSub) pump(ctx context.Context) {
	defer close(s.ch)
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			select {
			case <-s.done:
			default:
				s.bus.logger.Warn("redis subscription lost", zap.Strings("topics", s.Topics()), zap.Error(err))
				s.Close()
			}
			return
		}
		select {
		case s.ch <- Delivery{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) C() <-chan Delivery {
	return s.ch
}

func (s *redisSub) Topics() []string {
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()
	return lo.Keys(s.topics)
}

func (s *redisSub) Unsubscribe(ctx context.Context, topics ...string) error {
	s.topicsMu.Lock()
	if len(topics) == 0 {
		topics = lo.Keys(s.topics)
	}
	for _, t := range topics {
		delete(s.topics, t)
	}
	remaining := len(s.topics)
	s.topicsMu.Unlock()

	if remaining == 0 {
		return s.Close()
	}
	if err := s.ps.Unsubscribe(ctx, topics...); err != nil {
		return fmt.Errorf("%w: unsubscribe: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

func (s *redisSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.err = s.ps.Close()
		s.bus.forget(s)
	})
	return s.err
}
