package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"group-chat/internal/domain"
	"group-chat/internal/pagination"
)

// MemoryMessageRepository implementa MessageRepository en memoria con las
// mismas garantías de orden que Postgres: ids crecientes y created_at que no
// retrocede dentro de un grupo.
type MemoryMessageRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]domain.Message
	latest map[string]time.Time
	now    func() time.Time

	members MembershipRepository
	users   UserRepository
}

// NewMemoryMessageRepository acepta members y users nil: sin members el filtro
// por lector no restringe nada y sin users el autor queda "Unknown".
func NewMemoryMessageRepository(members MembershipRepository, users UserRepository) *MemoryMessageRepository {
	return &MemoryMessageRepository{
		rows:    make(map[int64]domain.Message),
		latest:  make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
		members: members,
		users:   users,
	}
}

// SetClock reemplaza el reloj; los tests lo usan para forzar timestamps repetidos.
func (r *MemoryMessageRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryMessageRepository) Insert(ctx context.Context, msg NewMessage) (domain.Message, error) {
	if err := checkShape(msg.Content, msg.FileRef); err != nil {
		return domain.Message{}, err
	}
	name := r.senderName(ctx, msg.SenderID)

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	if last, ok := r.latest[msg.GroupID]; ok && ts.Before(last) {
		ts = last
	}
	r.latest[msg.GroupID] = ts
	r.nextID++

	out := domain.Message{
		ID:         r.nextID,
		GroupID:    msg.GroupID,
		SenderID:   msg.SenderID,
		SenderName: name,
		Content:    msg.Content,
		FileRef:    cloneString(msg.FileRef),
		CreatedAt:  ts,
		UpdatedAt:  ts,
		State:      domain.MessageActive,
	}
	r.rows[out.ID] = out
	return out, nil
}

func (r *MemoryMessageRepository) GetByID(_ context.Context, id int64) (domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.rows[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message %d", domain.ErrNotFound, id)
	}
	return msg, nil
}

func (r *MemoryMessageRepository) Page(ctx context.Context, q PageQuery) (PageResult, error) {
	limit := pagination.ClampLimit(q.Limit)
	visible, err := r.visibleGroups(ctx, q.ViewerID)
	if err != nil {
		return PageResult{}, err
	}

	rows := r.filter(func(m domain.Message) bool {
		if !matches(m, q.GroupID, q.SenderID, visible) {
			return false
		}
		return q.Cursor == nil || q.Cursor.Admits(messageKey(m), q.Direction)
	})
	sortMessages(rows, q.Direction == pagination.Forward)
	if len(rows) > limit+1 {
		rows = rows[:limit+1]
	}

	items, next, hasMore := pagination.Window(rows, limit, messageKey)
	return PageResult{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

func (r *MemoryMessageRepository) List(ctx context.Context, q ListQuery) ([]domain.Message, int, error) {
	page, perPage := pagination.NormalizeOffset(q.Page, q.PerPage)
	visible, err := r.visibleGroups(ctx, q.ViewerID)
	if err != nil {
		return nil, 0, err
	}

	rows := r.filter(func(m domain.Message) bool {
		return matches(m, q.GroupID, q.SenderID, visible)
	})
	sortMessages(rows, false)
	return slice(rows, pagination.Offset(page, perPage), perPage), len(rows), nil
}

func (r *MemoryMessageRepository) Update(_ context.Context, id int64, editorID string, fields UpdateFields) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.ownedLocked(id, editorID, domain.ErrMessageDeleted)
	if err != nil {
		return domain.Message{}, err
	}
	content := msg.Content
	if fields.Content != nil {
		content = *fields.Content
	}
	if err := checkShape(content, fields.FileRef); err != nil {
		return domain.Message{}, err
	}

	msg.Content = content
	if fields.FileRef != nil {
		msg.FileRef = cloneString(fields.FileRef)
	}
	msg.UpdatedAt = r.touchLocked(msg)
	r.rows[id] = msg
	return msg, nil
}

func (r *MemoryMessageRepository) SoftDelete(_ context.Context, id int64, requesterID string) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.ownedLocked(id, requesterID, domain.ErrAlreadyDeleted)
	if err != nil {
		return domain.Message{}, err
	}
	msg.State = domain.MessageDeleted
	msg.UpdatedAt = r.touchLocked(msg)
	r.rows[id] = msg
	return msg, nil
}

func (r *MemoryMessageRepository) Search(ctx context.Context, q SearchQuery) ([]domain.Message, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidationFailed)
	}
	visible, err := r.visibleGroups(ctx, q.ViewerID)
	if err != nil {
		return nil, err
	}

	rows := r.filter(func(m domain.Message) bool {
		return matches(m, "", "", visible) && strings.Contains(strings.ToLower(m.Content), text)
	})
	sortMessages(rows, false)
	return slice(rows, max(q.Offset, 0), pagination.ClampLimit(q.Limit)), nil
}

func (r *MemoryMessageRepository) ownedLocked(id int64, userID string, deletedErr error) (domain.Message, error) {
	msg, ok := r.rows[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message %d", domain.ErrNotFound, id)
	}
	if msg.IsDeleted() {
		return domain.Message{}, fmt.Errorf("%w: message %d", deletedErr, id)
	}
	if msg.SenderID != userID {
		return domain.Message{}, fmt.Errorf("%w: only the sender can modify message %d", domain.ErrNotAuthorized, id)
	}
	return msg, nil
}

func (r *MemoryMessageRepository) touchLocked(msg domain.Message) time.Time {
	ts := r.now().UTC()
	if ts.Before(msg.UpdatedAt) {
		return msg.UpdatedAt
	}
	return ts
}

func (r *MemoryMessageRepository) filter(keep func(domain.Message) bool) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Message{}
	for _, m := range r.rows {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// visibleGroups devuelve nil cuando no hay restricción por lector.
func (r *MemoryMessageRepository) visibleGroups(ctx context.Context, viewerID string) (map[string]struct{}, error) {
	if viewerID == "" || r.members == nil {
		return nil, nil
	}
	groups, err := r.members.GroupsForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		set[g] = struct{}{}
	}
	return set, nil
}

func (r *MemoryMessageRepository) senderName(ctx context.Context, senderID string) string {
	if r.users == nil {
		return ""
	}
	u, err := r.users.GetByID(ctx, senderID)
	if err != nil {
		return ""
	}
	return u.Name
}

func matches(m domain.Message, groupID, senderID string, visible map[string]struct{}) bool {
	if m.IsDeleted() {
		return false
	}
	if groupID != "" && m.GroupID != groupID {
		return false
	}
	if senderID != "" && m.SenderID != senderID {
		return false
	}
	if visible != nil {
		if _, ok := visible[m.GroupID]; !ok {
			return false
		}
	}
	return true
}

func sortMessages(rows []domain.Message, ascending bool) {
	sort.Slice(rows, func(i, j int) bool {
		if ascending {
			return messageKey(rows[i]).Less(messageKey(rows[j]))
		}
		return messageKey(rows[j]).Less(messageKey(rows[i]))
	})
}

func slice(rows []domain.Message, offset, limit int) []domain.Message {
	if offset >= len(rows) {
		return []domain.Message{}
	}
	end := min(offset+limit, len(rows))
	return rows[offset:end]
}

func checkShape(content string, fileRef *string) error {
	n := utf8.RuneCountInString(content)
	if n < 1 || n > domain.MessageContentMaxLen {
		return fmt.Errorf("%w: content must be 1-%d characters", domain.ErrValidationFailed, domain.MessageContentMaxLen)
	}
	if fileRef != nil && utf8.RuneCountInString(*fileRef) > domain.MessageFileRefMaxLen {
		return fmt.Errorf("%w: file must be at most %d characters", domain.ErrValidationFailed, domain.MessageFileRefMaxLen)
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
