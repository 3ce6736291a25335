package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/eventbus"
)

// Manager crea sesiones, lleva la cuenta de las vivas y las cancela al apagar.
type Manager struct {
	verifier  TokenVerifier
	members   Memberships
	bus       eventbus.Bus
	heartbeat time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[*Session]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

func NewManager(verifier TokenVerifier, members Memberships, bus eventbus.Bus, heartbeat time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		verifier:  verifier,
		members:   members,
		bus:       bus,
		heartbeat: heartbeat,
		logger:    logger,
		sessions:  make(map[*Session]context.CancelFunc),
	}
}

// Serve corre una sesión nueva y bloquea hasta que termina.
func (m *Manager) Serve(ctx context.Context, req Request, sink Sink) error {
	s := &Session{
		ID:        uuid.NewString(),
		req:       req,
		verifier:  m.verifier,
		members:   m.members,
		bus:       m.bus,
		heartbeat: m.heartbeat,
		logger:    m.logger,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		err := fmt.Errorf("%w: server shutting down", domain.ErrBrokerUnavailable)
		_ = sink.Write(ErrorFrame(err))
		return err
	}
	m.sessions[s] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, s)
		m.mu.Unlock()
		m.wg.Done()
	}()

	return s.Run(ctx, sink)
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown cancela todas las sesiones y espera a que terminen o a que ctx venza.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.sessions {
		cancel()
	}
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("closing streams", zap.Int("active", n))
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
