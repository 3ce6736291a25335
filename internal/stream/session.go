package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/eventbus"
)

type State int

const (
	Connecting State = iota
	Subscribed
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Streaming:
		return "streaming"
	default:
		return "closed"
	}
}

// TokenVerifier resuelve un bearer token al id del usuario.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Memberships interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
}

// Request describe qué pidió el cliente: un grupo (GroupID) o todos los suyos (All).
type Request struct {
	Token   string
	GroupID string
	All     bool
}

// Session es una conexión SSE: Connecting -> Subscribed -> Streaming -> Closed.
// Cualquier fallo antes de Streaming manda un único frame de error.
type Session struct {
	ID  string
	req Request

	verifier  TokenVerifier
	members   Memberships
	bus       eventbus.Bus
	heartbeat time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	state  State
	userID string
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run atiende la sesión hasta que ctx se cancela, el cliente se va o el broker cae.
// Devuelve el error que cerró la sesión; una desconexión normal devuelve nil.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	defer s.setState(Closed)

	topics, hello, err := s.connect(ctx)
	if err != nil {
		s.fail(sink, err)
		return err
	}

	sub, err := s.bus.Subscribe(ctx, topics...)
	if err != nil {
		s.fail(sink, err)
		return err
	}
	defer func() {
		if cerr := sub.Close(); cerr != nil {
			s.logger.Warn("close subscription failed", zap.String("session", s.ID), zap.Error(cerr))
		}
	}()
	s.setState(Subscribed)

	frame, err := jsonFrame(hello)
	if err != nil {
		return err
	}
	// El frame connected es lo primero que se emite ya en Streaming.
	s.setState(Streaming)
	if err := sink.Write(frame); err != nil {
		return nil
	}
	s.logger.Info("stream opened", zap.String("session", s.ID), zap.String("user", s.userID), zap.Strings("topics", topics))

	return s.pump(ctx, sink, sub)
}

func (s *Session) connect(ctx context.Context) ([]string, connectedFrame, error) {
	token := strings.TrimSpace(s.req.Token)
	if token == "" {
		return nil, connectedFrame{}, fmt.Errorf("%w: missing token", domain.ErrNotAuthenticated)
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		return nil, connectedFrame{}, err
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	if s.req.All {
		groups, err := s.members.GroupsForUser(ctx, userID)
		if err != nil {
			return nil, connectedFrame{}, err
		}
		if len(groups) == 0 {
			return nil, connectedFrame{}, fmt.Errorf("%w: user is not a member of any groups", domain.ErrNotAuthorized)
		}
		return lo.Map(groups, func(g string, _ int) string { return eventbus.GroupTopic(g) }),
			connectedFrame{Type: "connected", Groups: groups}, nil
	}

	groupID := strings.TrimSpace(s.req.GroupID)
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, connectedFrame{}, fmt.Errorf("%w: group_uuid parameter required", domain.ErrValidationFailed)
	}
	ok, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, connectedFrame{}, err
	}
	if !ok {
		return nil, connectedFrame{}, fmt.Errorf("%w: not a member of this group", domain.ErrNotAuthorized)
	}
	return []string{eventbus.GroupTopic(groupID)}, connectedFrame{Type: "connected", GroupID: groupID}, nil
}

func (s *Session) pump(ctx context.Context, sink Sink, sub eventbus.Subscription) error {
	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stream closed", zap.String("session", s.ID))
			return nil
		case <-tick:
			if err := sink.Write(pingFrame); err != nil {
				s.logger.Info("stream peer gone", zap.String("session", s.ID), zap.Error(err))
				return nil
			}
		case d, ok := <-sub.C():
			if !ok {
				err := fmt.Errorf("%w: subscription closed", domain.ErrBrokerUnavailable)
				s.fail(sink, err)
				return err
			}
			if _, err := domain.DecodeEvent(d.Payload); err != nil {
				s.logger.Warn("skipping malformed event", zap.String("session", s.ID), zap.String("topic", d.Topic), zap.Error(err))
				continue
			}
			if err := sink.Write(dataFrame(d.Payload)); err != nil {
				s.logger.Info("stream peer gone", zap.String("session", s.ID), zap.Error(err))
				return nil
			}
		}
	}
}

func (s *Session) fail(sink Sink, err error) {
	s.logger.Info("stream rejected",
		zap.String("session", s.ID),
		zap.String("state", s.State().String()),
		zap.String("kind", domain.ErrorKind(err)),
		zap.Error(err),
	)
	if werr := sink.Write(ErrorFrame(err)); werr != nil {
		s.logger.Debug("write error frame failed", zap.String("session", s.ID), zap.Error(werr))
	}
}
