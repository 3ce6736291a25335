package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"group-chat/internal/domain"
)

const defaultBuffer = 64

// MemoryBus es un Bus en proceso. Cada suscripción tiene su propio canal FIFO,
// así el orden de publicación se preserva por suscriptor.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySub]struct{}
	closed bool
	buffer int
	logger *zap.Logger
}

func NewMemoryBus(buffer int, logger *zap.Logger) *MemoryBus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{
		topics: make(map[string]map[*memorySub]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Publish entrega a una foto de los suscriptores tomada al inicio y nunca espera
// a un consumidor: el que tiene el buffer lleno se desconecta, igual que Redis
// con un cliente que excede su output buffer.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0, fmt.Errorf("%w: bus closed", domain.ErrBrokerUnavailable)
	}
	subs := lo.Keys(b.topics[topic])
	b.mu.RUnlock()

	d := Delivery{Topic: topic, Payload: append([]byte(nil), payload...)}
	delivered := 0
	for _, s := range subs {
		switch s.deliver(d) {
		case deliverOK:
			delivered++
		case deliverFull:
			b.logger.Warn("dropping slow subscriber",
				zap.String("topic", topic),
				zap.Int("buffer", b.buffer),
			)
			s.evict()
		}
	}
	return delivered, nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	topics = lo.Uniq(lo.Compact(topics))
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationFailed, errNoTopics)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: bus closed", domain.ErrBrokerUnavailable)
	}

	s := &memorySub{
		bus:    b,
		ch:     make(chan Delivery, b.buffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
		set, ok := b.topics[t]
		if !ok {
			set = make(map[*memorySub]struct{})
			b.topics[t] = set
		}
		set[s] = struct{}{}
	}
	return s, nil
}

func (b *MemoryBus) SubscriberCount(_ context.Context, topic string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic]), nil
}

func (b *MemoryBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("%w: bus closed", domain.ErrBrokerUnavailable)
	}
	return nil
}

// Close cierra todas las suscripciones vivas; sus canales se cierran.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*memorySub
	for _, set := range b.topics {
		subs = append(subs, lo.Keys(set)...)
	}
	b.topics = make(map[string]map[*memorySub]struct{})
	b.mu.Unlock()

	for _, s := range lo.Uniq(subs) {
		s.shutdown()
	}
	return nil
}

func (b *MemoryBus) detach(s *memorySub, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		set := b.topics[t]
		delete(set, s)
		if len(set) == 0 {
			delete(b.topics, t)
		}
	}
}

// memorySub protege el cierre de ch con mu: deliver envía sin bloquear bajo
// RLock y shutdown cierra ch bajo Lock, así ningún envío cae sobre un canal cerrado.
type memorySub struct {
	bus  *MemoryBus
	ch   chan Delivery
	once sync.Once

	mu     sync.RWMutex
	closed bool

	topicsMu sync.Mutex
	topics   map[string]struct{}
}

func (s *memorySub) C() <-chan Delivery {
	return s.ch
}

func (s *memorySub) Topics() []string {
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()
	return lo.Keys(s.topics)
}

func (s *memorySub) Unsubscribe(_ context.Context, topics ...string) error {
	s.topicsMu.Lock()
	if len(topics) == 0 {
		topics = lo.Keys(s.topics)
	}
	for _, t := range topics {
		delete(s.topics, t)
	}
	remaining := len(s.topics)
	s.topicsMu.Unlock()

	s.bus.detach(s, topics)
	if remaining == 0 {
		s.shutdown()
	}
	return nil
}

func (s *memorySub) Close() error {
	return s.Unsubscribe(context.Background())
}

type deliveryResult int

const (
	deliverSkipped deliveryResult = iota
	deliverOK
	deliverFull
)

func (s *memorySub) deliver(d Delivery) deliveryResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return deliverSkipped
	}
	select {
	case s.ch <- d:
		return deliverOK
	default:
		return deliverFull
	}
}

// evict saca al suscriptor de todos sus topics y cierra su canal.
func (s *memorySub) evict() {
	s.topicsMu.Lock()
	topics := lo.Keys(s.topics)
	s.topics = make(map[string]struct{})
	s.topicsMu.Unlock()

	s.bus.detach(s, topics)
	s.shutdown()
}

func (s *memorySub) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
