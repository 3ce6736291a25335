package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"group-chat/internal/domain"
	"group-chat/internal/pagination"
)

type NewMessage struct {
	GroupID  string
	SenderID string
	Content  string
	FileRef  *string
}

// UpdateFields lleva solo los campos a modificar; nil significa "sin cambios".
type UpdateFields struct {
	Content *string
	FileRef *string
}

// PageQuery filtra y posiciona una lectura por cursor.
// ViewerID restringe el resultado a los grupos de los que el usuario es miembro.
type PageQuery struct {
	GroupID   string
	SenderID  string
	ViewerID  string
	Cursor    *pagination.Cursor
	Limit     int
	Direction pagination.Direction
}

type PageResult struct {
	Items      []domain.Message
	NextCursor *pagination.Cursor
	HasMore    bool
}

type ListQuery struct {
	GroupID  string
	SenderID string
	ViewerID string
	Page     int
	PerPage  int
}

type SearchQuery struct {
	Text     string
	ViewerID string
	Limit    int
	Offset   int
}

// MessageRepository es el log durable y ordenado de mensajes por grupo.
type MessageRepository interface {
	Insert(ctx context.Context, msg NewMessage) (domain.Message, error)
	GetByID(ctx context.Context, id int64) (domain.Message, error)
	Page(ctx context.Context, q PageQuery) (PageResult, error)
	List(ctx context.Context, q ListQuery) ([]domain.Message, int, error)
	Update(ctx context.Context, id int64, editorID string, fields UpdateFields) (domain.Message, error)
	SoftDelete(ctx context.Context, id int64, requesterID string) (domain.Message, error)
	Search(ctx context.Context, q SearchQuery) ([]domain.Message, error)
}

// PgMessageRepository implementa MessageRepository usando pgxpool.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

// Insert serializa las altas de un mismo grupo con un advisory lock de transacción:
// dentro del lock el id sale de la secuencia y created_date nunca retrocede.
func (r *PgMessageRepository) Insert(ctx context.Context, msg NewMessage) (domain.Message, error) {
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	const insertQuery = `
		WITH clock AS (
			SELECT GREATEST(
				clock_timestamp(),
				COALESCE((SELECT max(created_date) FROM messages WHERE group_uuid = $1), '-infinity'::timestamptz)
			) AS ts
		), m AS (
			INSERT INTO messages (group_uuid, sender_uuid, content, file, created_date, updated_at)
			VALUES ($1, $2, $3, $4, (SELECT ts FROM clock), (SELECT ts FROM clock))
			RETURNING id, group_uuid, sender_uuid, content, file, created_date, updated_at, is_deleted
		)
	` + returningSelect

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, storeErr("begin insert", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, lockQuery, msg.GroupID); err != nil {
		return domain.Message{}, storeErr("lock group", err)
	}
	out, err := scanMessage(tx.QueryRow(ctx, insertQuery, msg.GroupID, msg.SenderID, msg.Content, msg.FileRef))
	if err != nil {
		return domain.Message{}, storeErr("insert message", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, storeErr("commit insert", err)
	}
	return out, nil
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id int64) (domain.Message, error) {
	query := selectMessage + ` WHERE m.id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Message{}, storeErr("get message", err)
	}
	return msg, nil
}

func (r *PgMessageRepository) Page(ctx context.Context, q PageQuery) (PageResult, error) {
	limit := pagination.ClampLimit(q.Limit)
	query, args := buildPageQuery(q, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return PageResult{}, storeErr("page messages", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return PageResult{}, storeErr("page messages", err)
	}

	items, next, hasMore := pagination.Window(messages, limit, messageKey)
	return PageResult{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

func (r *PgMessageRepository) List(ctx context.Context, q ListQuery) ([]domain.Message, int, error) {
	page, perPage := pagination.NormalizeOffset(q.Page, q.PerPage)
	countQuery, listQuery, args := buildListQueries(q, perPage, pagination.Offset(page, perPage))

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, storeErr("count messages", err)
	}
	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, storeErr("list messages", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, storeErr("list messages", err)
	}
	return messages, total, nil
}

func (r *PgMessageRepository) Update(ctx context.Context, id int64, editorID string, fields UpdateFields) (domain.Message, error) {
	const updateQuery = `
		WITH m AS (
			UPDATE messages
			SET content = COALESCE($2, content), file = COALESCE($3, file)
			WHERE id = $1
			RETURNING id, group_uuid, sender_uuid, content, file, created_date, updated_at, is_deleted
		)
	` + returningSelect

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, storeErr("begin update", err)
	}
	defer tx.Rollback(ctx)

	if err := checkOwnership(ctx, tx, id, editorID, domain.ErrMessageDeleted); err != nil {
		return domain.Message{}, err
	}
	out, err := scanMessage(tx.QueryRow(ctx, updateQuery, id, fields.Content, fields.FileRef))
	if err != nil {
		return domain.Message{}, storeErr("update message", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, storeErr("commit update", err)
	}
	return out, nil
}

func (r *PgMessageRepository) SoftDelete(ctx context.Context, id int64, requesterID string) (domain.Message, error) {
	const deleteQuery = `
		WITH m AS (
			UPDATE messages SET is_deleted = true
			WHERE id = $1
			RETURNING id, group_uuid, sender_uuid, content, file, created_date, updated_at, is_deleted
		)
	` + returningSelect

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, storeErr("begin delete", err)
	}
	defer tx.Rollback(ctx)

	if err := checkOwnership(ctx, tx, id, requesterID, domain.ErrAlreadyDeleted); err != nil {
		return domain.Message{}, err
	}
	out, err := scanMessage(tx.QueryRow(ctx, deleteQuery, id))
	if err != nil {
		return domain.Message{}, storeErr("delete message", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, storeErr("commit delete", err)
	}
	return out, nil
}

func (r *PgMessageRepository) Search(ctx context.Context, q SearchQuery) ([]domain.Message, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidationFailed)
	}
	query, args := buildSearchQuery(q)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("search messages", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, storeErr("search messages", err)
	}
	return messages, nil
}

// checkOwnership bloquea la fila y aplica el orden de validación:
// no existe, ya borrado, no es el autor.
func checkOwnership(ctx context.Context, tx pgx.Tx, id int64, userID string, deletedErr error) error {
	const query = `SELECT sender_uuid::text, is_deleted FROM messages WHERE id = $1 FOR UPDATE`
	var (
		senderID  string
		isDeleted bool
	)
	if err := tx.QueryRow(ctx, query, id).Scan(&senderID, &isDeleted); err != nil {
		return storeErr("lock message", err)
	}
	if isDeleted {
		return fmt.Errorf("%w: message %d", deletedErr, id)
	}
	if senderID != userID {
		return fmt.Errorf("%w: only the sender can modify message %d", domain.ErrNotAuthorized, id)
	}
	return nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		msg       domain.Message
		isDeleted bool
	)
	err := row.Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Content,
		&msg.FileRef,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&isDeleted,
	)
	if err != nil {
		return domain.Message{}, err
	}
	if isDeleted {
		msg.State = domain.MessageDeleted
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.UpdatedAt = msg.UpdatedAt.UTC()
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func messageKey(m domain.Message) pagination.Cursor {
	return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// storeErr traduce errores de pgx a la taxonomía del dominio.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotAuthorized) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s: referenced row missing", domain.ErrNotFound, op)
		case "22P02", "23514":
			return fmt.Errorf("%w: %s: %s", domain.ErrValidationFailed, op, pgErr.Message)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
