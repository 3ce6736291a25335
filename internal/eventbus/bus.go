package eventbus

import (
	"context"
	"errors"
)

const groupTopicPrefix = "group:"

// GroupTopic devuelve el topic de fan-out de un grupo.
func GroupTopic(groupID string) string {
	return groupTopicPrefix + groupID
}

// Delivery es un payload recibido junto con el topic por el que llegó.
type Delivery struct {
	Topic   string
	Payload []byte
}

// Subscription es un handle sobre uno o más topics con un único canal de entrega.
// El canal se cierra cuando el handle se cierra o se pierde la conexión con el broker.
type Subscription interface {
	C() <-chan Delivery
	Topics() []string
	// Unsubscribe quita topics; sin argumentos o al quedar vacío cierra el handle.
	Unsubscribe(ctx context.Context, topics ...string) error
	Close() error
}

// Bus es el transporte publish/subscribe. Publish devuelve cuántos suscriptores recibieron el payload.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) (int, error)
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
	SubscriberCount(ctx context.Context, topic string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

var errNoTopics = errors.New("at least one topic is required")
