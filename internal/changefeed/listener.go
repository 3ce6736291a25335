package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"group-chat/internal/db"
	"group-chat/internal/domain"
	"group-chat/internal/retry"
)

// Operaciones que emite el trigger notify_message_change.
const (
	opInsert     = "INSERT"
	opUpdate     = "UPDATE"
	opSoftDelete = "SOFT_DELETE"
)

type notification struct {
	Operation string `json:"operation"`
	ID        int64  `json:"id"`
	GroupID   string `json:"group_uuid"`
}

// MessageLoader recarga la fila: el trigger solo manda ids.
type MessageLoader interface {
	GetByID(ctx context.Context, id int64) (domain.Message, error)
}

type notificationStream interface {
	Wait(ctx context.Context) (string, error)
	Close()
}

type notificationSource interface {
	Listen(ctx context.Context) (notificationStream, error)
}

// Listener traduce notificaciones de Postgres en eventos del bus.
type Listener struct {
	source   notificationSource
	messages MessageLoader
	notifier Notifier
	policy   retry.Policy
	logger   *zap.Logger

	stream notificationStream
}

func NewListener(pool *pgxpool.Pool, messages MessageLoader, notifier Notifier, policy retry.Policy, logger *zap.Logger) *Listener {
	return newListener(&pgSource{pool: pool}, messages, notifier, policy, logger)
}

func newListener(source notificationSource, messages MessageLoader, notifier Notifier, policy retry.Policy, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		source:   source,
		messages: messages,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}
}

// Attach abre la conexión dedicada con reintentos. Un error acá es fatal al arrancar.
func (l *Listener) Attach(ctx context.Context) error {
	stream, err := l.attach(ctx)
	if err != nil {
		return err
	}
	l.stream = stream
	return nil
}

// Run procesa notificaciones hasta que ctx se cancela (devuelve nil) o hasta que
// una reconexión agota los reintentos (devuelve el error).
func (l *Listener) Run(ctx context.Context) error {
	if l.stream == nil {
		if err := l.Attach(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if l.stream != nil {
			l.stream.Close()
			l.stream = nil
		}
	}()

	for {
		payload, err := l.stream.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("change feed connection lost", zap.Error(err))
			l.stream.Close()
			l.stream = nil
			if err := l.Attach(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}
		l.handle(ctx, payload)
	}
}

// Start corre Run en segundo plano. done se cierra cuando Run termina; failed
// recibe el error si el feed se perdió sin que ctx se cancelara.
func (l *Listener) Start(ctx context.Context) (<-chan struct{}, <-chan error) {
	done := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			l.logger.Error("change feed stopped", zap.Error(err))
			failed <- err
		}
	}()
	return done, failed
}

func (l *Listener) attach(ctx context.Context) (notificationStream, error) {
	var stream notificationStream
	err := retry.Do(ctx, l.policy, func(ctx context.Context) error {
		s, err := l.source.Listen(ctx)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, func(attempt int, err error) {
		l.logger.Warn("change feed attach failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: change feed: %v", domain.ErrStoreUnavailable, err)
	}
	l.logger.Info("change feed attached", zap.String("channel", db.NotifyChannel))
	return stream, nil
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil || n.ID <= 0 {
		l.logger.Warn("malformed change notification", zap.String("payload", payload), zap.Error(err))
		return
	}

	var eventType domain.EventType
	switch n.Operation {
	case opInsert:
		eventType = domain.EventNewMessage
	case opUpdate:
		eventType = domain.EventUpdatedMessage
	case opSoftDelete:
		eventType = domain.EventDeletedMessage
	default:
		l.logger.Warn("unknown change operation", zap.String("operation", n.Operation), zap.Int64("message_id", n.ID))
		return
	}

	msg, err := l.messages.GetByID(ctx, n.ID)
	if err != nil {
		l.logger.Error("reload changed message failed", zap.Int64("message_id", n.ID), zap.Error(err))
		return
	}
	// Un UPDATE sobre una fila ya borrada no es un cambio visible.
	if eventType == domain.EventUpdatedMessage && msg.IsDeleted() {
		return
	}
	if err := l.notifier.Notify(ctx, eventType, msg); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Error("change feed publish failed", zap.Int64("message_id", n.ID), zap.Error(err))
	}
}

type pgSource struct {
	pool *pgxpool.Pool
}

func (s *pgSource) Listen(ctx context.Context) (notificationStream, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+db.NotifyChannel); err != nil {
		conn.Release()
		return nil, err
	}
	return &pgStream{conn: conn}, nil
}

type pgStream struct {
	conn *pgxpool.Conn
}

func (s *pgStream) Wait(ctx context.Context) (string, error) {
	n, err := s.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

// Close deja la conexión limpia antes de devolverla al pool.
func (s *pgStream) Close() {
	if !s.conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = s.conn.Exec(ctx, "UNLISTEN *")
		cancel()
	}
	s.conn.Release()
}
