package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"group-chat/internal/domain"
)

const (
	defaultRefreshTTL       = 30 * 24 * time.Hour
	defaultRefreshStoreWait = 500 * time.Millisecond
	refreshKeyPrefix        = "chat:refresh:"
)

// ErrRefreshTokenUnknown: el jti nunca se emitió, ya se usó o fue revocado.
var ErrRefreshTokenUnknown = errors.New("refresh token unknown")

// RefreshTokenStore lleva los refresh tokens vigentes por jti, con su dueño.
// Consume es atómico: de dos rotaciones concurrentes del mismo token gana una sola.
type RefreshTokenStore interface {
	Store(jti, userID string, ttl time.Duration) error
	Consume(jti string) (userID string, err error)
	Revoke(jti string) error
}

type refreshEntry struct {
	userID  string
	expires time.Time
}

type memoryRefreshTokenStore struct {
	mu    sync.Mutex
	items map[string]refreshEntry
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{items: make(map[string]refreshEntry)}
}

func (s *memoryRefreshTokenStore) Store(jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	s.mu.Lock()
	s.items[jti] = refreshEntry{userID: userID, expires: time.Now().UTC().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *memoryRefreshTokenStore) Consume(jti string) (string, error) {
	jti = strings.TrimSpace(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[jti]
	if !ok {
		return "", ErrRefreshTokenUnknown
	}
	delete(s.items, jti)
	if time.Now().UTC().After(e.expires) {
		return "", ErrRefreshTokenUnknown
	}
	return e.userID, nil
}

func (s *memoryRefreshTokenStore) Revoke(jti string) error {
	s.mu.Lock()
	delete(s.items, strings.TrimSpace(jti))
	s.mu.Unlock()
	return nil
}

type redisRefreshClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisRefreshTokenStore guarda chat:refresh:<jti> -> userID con el TTL del token.
type redisRefreshTokenStore struct {
	client  redisRefreshClient
	timeout time.Duration
}

// NewRedisRefreshTokenStore acota cada operación a timeout (500ms si no es positivo).
func NewRedisRefreshTokenStore(client *redis.Client, timeout time.Duration) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return newRedisRefreshTokenStore(client, timeout)
}

func newRedisRefreshTokenStore(client redisRefreshClient, timeout time.Duration) *redisRefreshTokenStore {
	if timeout <= 0 {
		timeout = defaultRefreshStoreWait
	}
	return &redisRefreshTokenStore{client: client, timeout: timeout}
}

func (s *redisRefreshTokenStore) Store(jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, refreshKeyPrefix+jti, userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: store refresh token: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisRefreshTokenStore) Consume(jti string) (string, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return "", ErrRefreshTokenUnknown
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	userID, err := s.client.GetDel(ctx, refreshKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRefreshTokenUnknown
	}
	if err != nil {
		return "", fmt.Errorf("%w: consume refresh token: %v", domain.ErrStoreUnavailable, err)
	}
	return userID, nil
}

func (s *redisRefreshTokenStore) Revoke(jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Del(ctx, refreshKeyPrefix+jti).Err(); err != nil {
		return fmt.Errorf("%w: revoke refresh token: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
