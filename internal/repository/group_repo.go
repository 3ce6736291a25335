package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"group-chat/internal/domain"
)

type GroupRepository interface {
	Create(ctx context.Context, id string) (domain.Group, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type PgGroupRepository struct {
	pool *pgxpool.Pool
}

func NewPgGroupRepository(pool *pgxpool.Pool) *PgGroupRepository {
	return &PgGroupRepository{pool: pool}
}

func (r *PgGroupRepository) Create(ctx context.Context, id string) (domain.Group, error) {
	const query = `
		INSERT INTO chat_groups (uuid) VALUES ($1)
		RETURNING uuid::text, created_date, updated_at
	`
	var g domain.Group
	if err := r.pool.QueryRow(ctx, query, id).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return domain.Group{}, storeErr("create group", err)
	}
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

func (r *PgGroupRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM chat_groups WHERE uuid = $1)`
	var ok bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, storeErr("check group", err)
	}
	return ok, nil
}

type MemoryGroupRepository struct {
	mu     sync.RWMutex
	groups map[string]domain.Group
}

func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{groups: make(map[string]domain.Group)}
}

func (r *MemoryGroupRepository) Create(_ context.Context, id string) (domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; ok {
		return domain.Group{}, fmt.Errorf("%w: group %s already exists", domain.ErrValidationFailed, id)
	}
	now := time.Now().UTC()
	g := domain.Group{ID: id, CreatedAt: now, UpdatedAt: now}
	r.groups[id] = g
	return g, nil
}

func (r *MemoryGroupRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[id]
	return ok, nil
}
