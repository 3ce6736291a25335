package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"group-chat/internal/domain"
)

var ErrUserNameTaken = fmt.Errorf("%w: user name already exists", domain.ErrValidationFailed)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByName(ctx context.Context, name string) (domain.User, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
		INSERT INTO users (uuid, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING uuid::text, name, created_date, updated_at
	`
	u, err := scanUser(r.pool.QueryRow(ctx, query, user.ID, user.Name))
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, ErrUserNameTaken
		}
		return domain.User{}, storeErr("create user", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT uuid::text, name, created_date, updated_at FROM users WHERE uuid = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, storeErr("get user", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByName(ctx context.Context, name string) (domain.User, error) {
	const query = `SELECT uuid::text, name, created_date, updated_at FROM users WHERE name = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		return domain.User{}, storeErr("get user by name", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// MemoryUserRepository implementa UserRepository en memoria.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	byID   map[string]domain.User
	byName map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:   make(map[string]domain.User),
		byName: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[user.Name]; taken {
		return domain.User{}, ErrUserNameTaken
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.byID[user.ID] = user
	r.byName[user.Name] = user.ID
	return user, nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return u, nil
}

func (r *MemoryUserRepository) GetByName(_ context.Context, name string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %q", domain.ErrNotFound, name)
	}
	return r.byID[id], nil
}

// NameOf devuelve el nombre del usuario o "" si no existe.
func (r *MemoryUserRepository) NameOf(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Name
}
