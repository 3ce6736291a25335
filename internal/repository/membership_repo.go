package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"group-chat/internal/domain"
)

var (
	ErrAlreadyMember = fmt.Errorf("%w: already a member of this group", domain.ErrValidationFailed)
	ErrNotMember     = fmt.Errorf("%w: not a member of this group", domain.ErrValidationFailed)
)

// MembershipRepository es la puerta de autorización para publicar, leer y hacer streaming.
type MembershipRepository interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	Add(ctx context.Context, groupID, userID string) (domain.Participant, error)
	Remove(ctx context.Context, groupID, userID string) error
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
}

type PgMembershipRepository struct {
	pool *pgxpool.Pool
}

func NewPgMembershipRepository(pool *pgxpool.Pool) *PgMembershipRepository {
	return &PgMembershipRepository{pool: pool}
}

func (r *PgMembershipRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM group_participants WHERE group_uuid = $1 AND user_uuid = $2
		)
	`
	var ok bool
	if err := r.pool.QueryRow(ctx, query, groupID, userID).Scan(&ok); err != nil {
		return false, storeErr("check membership", err)
	}
	return ok, nil
}

func (r *PgMembershipRepository) Add(ctx context.Context, groupID, userID string) (domain.Participant, error) {
	const query = `
		INSERT INTO group_participants (group_uuid, user_uuid)
		VALUES ($1, $2)
		ON CONFLICT (group_uuid, user_uuid) DO NOTHING
		RETURNING group_uuid::text, user_uuid::text, joined_at
	`
	var p domain.Participant
	err := r.pool.QueryRow(ctx, query, groupID, userID).Scan(&p.GroupID, &p.UserID, &p.JoinedAt)
	if err != nil {
		// ON CONFLICT DO NOTHING no devuelve fila: ya era miembro.
		if isNoRows(err) {
			return domain.Participant{}, ErrAlreadyMember
		}
		return domain.Participant{}, storeErr("add participant", err)
	}
	return p, nil
}

func (r *PgMembershipRepository) Remove(ctx context.Context, groupID, userID string) error {
	const query = `DELETE FROM group_participants WHERE group_uuid = $1 AND user_uuid = $2`
	tag, err := r.pool.Exec(ctx, query, groupID, userID)
	if err != nil {
		return storeErr("remove participant", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotMember
	}
	return nil
}

func (r *PgMembershipRepository) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT group_uuid::text FROM group_participants
		WHERE user_uuid = $1
		ORDER BY joined_at ASC, group_uuid ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list memberships", err)
	}
	defer rows.Close()

	groups := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list memberships", err)
		}
		groups = append(groups, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list memberships", err)
	}
	return groups, nil
}

// MemoryMembershipRepository implementa MembershipRepository en memoria.
type MemoryMembershipRepository struct {
	mu      sync.RWMutex
	members map[string]map[string]time.Time
}

func NewMemoryMembershipRepository() *MemoryMembershipRepository {
	return &MemoryMembershipRepository{members: make(map[string]map[string]time.Time)}
}

func (r *MemoryMembershipRepository) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[groupID][userID]
	return ok, nil
}

func (r *MemoryMembershipRepository) Add(_ context.Context, groupID, userID string) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, ok := r.members[groupID]
	if !ok {
		users = make(map[string]time.Time)
		r.members[groupID] = users
	}
	if _, exists := users[userID]; exists {
		return domain.Participant{}, ErrAlreadyMember
	}
	now := time.Now().UTC()
	users[userID] = now
	return domain.Participant{GroupID: groupID, UserID: userID, JoinedAt: now}, nil
}

func (r *MemoryMembershipRepository) Remove(_ context.Context, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[groupID][userID]; !ok {
		return ErrNotMember
	}
	delete(r.members[groupID], userID)
	return nil
}

func (r *MemoryMembershipRepository) GroupsForUser(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := []string{}
	for groupID, users := range r.members {
		if _, ok := users[userID]; ok {
			groups = append(groups, groupID)
		}
	}
	sort.Strings(groups)
	return groups, nil
}
