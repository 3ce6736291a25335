package changefeed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/eventbus"
)

// Notifier anuncia un cambio ya confirmado en el store.
type Notifier interface {
	Notify(ctx context.Context, t domain.EventType, msg domain.Message) error
}

// Publisher codifica el evento y lo publica en el topic del grupo.
type Publisher struct {
	bus    eventbus.Bus
	logger *zap.Logger
}

func NewPublisher(bus eventbus.Bus, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{bus: bus, logger: logger}
}

func (p *Publisher) Notify(ctx context.Context, t domain.EventType, msg domain.Message) error {
	if p == nil || p.bus == nil {
		return fmt.Errorf("%w: publisher not configured", domain.ErrBrokerUnavailable)
	}
	payload, err := domain.EncodeEvent(domain.NewMessageEvent(t, msg))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", t, err)
	}

	topic := eventbus.GroupTopic(msg.GroupID)
	n, err := p.bus.Publish(ctx, topic, payload)
	if err != nil {
		p.logger.Error("publish event failed",
			zap.String("type", string(t)),
			zap.Int64("message_id", msg.ID),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}
	p.logger.Debug("event published",
		zap.String("type", string(t)),
		zap.Int64("message_id", msg.ID),
		zap.Int("receivers", n),
	)
	return nil
}
