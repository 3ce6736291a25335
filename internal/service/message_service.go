package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"group-chat/internal/changefeed"
	"group-chat/internal/domain"
	"group-chat/internal/pagination"
	"group-chat/internal/repository"
)

// MessageService encapsula las reglas de escritura y lectura de mensajes:
// validación, membresía, rate limit, cache y anuncio del cambio en el bus.
type MessageService struct {
	logger   *zap.Logger
	messages repository.MessageRepository
	members  repository.MembershipRepository
	notifier changefeed.Notifier
	cache    *MessageCache
	limiter  PostRateLimiter
}

var ErrMessageServiceNotConfigured = errors.New("message service not configured")

// NewMessageService acepta notifier nil (el change feed LISTEN publica por su
// cuenta), cache nil y limiter nil.
func NewMessageService(
	logger *zap.Logger,
	messages repository.MessageRepository,
	members repository.MembershipRepository,
	notifier changefeed.Notifier,
	cache *MessageCache,
	limiter PostRateLimiter,
) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		logger:   logger,
		messages: messages,
		members:  members,
		notifier: notifier,
		cache:    cache,
		limiter:  limiter,
	}
}

type PostMessageInput struct {
	GroupID string  `validate:"required,uuid"`
	Content string  `validate:"required,max=10000"`
	File    *string `validate:"omitnil,max=500"`
}

type UpdateMessageInput struct {
	Content *string `validate:"omitnil,min=1,max=10000"`
	File    *string `validate:"omitnil,max=500"`
}

type PageRequest struct {
	GroupID   string
	Cursor    string
	Limit     int
	Direction string
}

type ListRequest struct {
	GroupID  string
	SenderID string
	Page     int
	PerPage  int
}

func (s *MessageService) ready() error {
	if s == nil || s.messages == nil || s.members == nil {
		return ErrMessageServiceNotConfigured
	}
	return nil
}

// Post persiste el mensaje y, ya confirmado, lo anuncia como new_message.
func (s *MessageService) Post(ctx context.Context, senderID string, in PostMessageInput) (domain.Message, error) {
	if err := s.ready(); err != nil {
		return domain.Message{}, err
	}
	in.GroupID = strings.TrimSpace(in.GroupID)
	if err := validateStruct(in); err != nil {
		return domain.Message{}, err
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, senderID) {
		return domain.Message{}, fmt.Errorf("%w: too many messages, slow down", domain.ErrRateLimited)
	}
	if err := s.requireMember(ctx, in.GroupID, senderID); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.messages.Insert(ctx, repository.NewMessage{
		GroupID:  in.GroupID,
		SenderID: senderID,
		Content:  in.Content,
		FileRef:  in.File,
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.cache.Put(ctx, msg)
	s.announce(ctx, domain.EventNewMessage, msg)
	return msg, nil
}

// Get devuelve un mensaje visible para el lector; los borrados son NotFound.
func (s *MessageService) Get(ctx context.Context, viewerID string, id int64) (domain.Message, error) {
	if err := s.ready(); err != nil {
		return domain.Message{}, err
	}
	msg, err := s.cache.Get(ctx, id, func(ctx context.Context) (domain.Message, error) {
		return s.messages.GetByID(ctx, id)
	})
	if err != nil {
		return domain.Message{}, err
	}
	if msg.IsDeleted() {
		return domain.Message{}, fmt.Errorf("%w: message %d", domain.ErrNotFound, id)
	}
	if err := s.requireMember(ctx, msg.GroupID, viewerID); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Page lee el historial de un grupo por cursor.
func (s *MessageService) Page(ctx context.Context, viewerID string, req PageRequest) (repository.PageResult, error) {
	if err := s.ready(); err != nil {
		return repository.PageResult{}, err
	}
	groupID, err := requireUUID("group_uuid", req.GroupID)
	if err != nil {
		return repository.PageResult{}, err
	}
	dir, err := pagination.ParseDirection(req.Direction)
	if err != nil {
		return repository.PageResult{}, err
	}
	var cursor *pagination.Cursor
	if strings.TrimSpace(req.Cursor) != "" {
		c, err := pagination.Decode(req.Cursor)
		if err != nil {
			return repository.PageResult{}, err
		}
		cursor = &c
	}
	if err := s.requireMember(ctx, groupID, viewerID); err != nil {
		return repository.PageResult{}, err
	}

	return s.messages.Page(ctx, repository.PageQuery{
		GroupID:   groupID,
		ViewerID:  viewerID,
		Cursor:    cursor,
		Limit:     req.Limit,
		Direction: dir,
	})
}

// List es la paginación por offset de GET /messages, acotada a los grupos del lector.
func (s *MessageService) List(ctx context.Context, viewerID string, req ListRequest) ([]domain.Message, pagination.Meta, error) {
	if err := s.ready(); err != nil {
		return nil, pagination.Meta{}, err
	}
	q := repository.ListQuery{ViewerID: viewerID}
	if strings.TrimSpace(req.GroupID) != "" {
		groupID, err := requireUUID("group_uuid", req.GroupID)
		if err != nil {
			return nil, pagination.Meta{}, err
		}
		if err := s.requireMember(ctx, groupID, viewerID); err != nil {
			return nil, pagination.Meta{}, err
		}
		q.GroupID = groupID
	}
	if strings.TrimSpace(req.SenderID) != "" {
		senderID, err := requireUUID("sender_uuid", req.SenderID)
		if err != nil {
			return nil, pagination.Meta{}, err
		}
		q.SenderID = senderID
	}
	q.Page, q.PerPage = pagination.NormalizeOffset(req.Page, req.PerPage)

	msgs, total, err := s.messages.List(ctx, q)
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	return msgs, pagination.NewMeta(q.Page, q.PerPage, total), nil
}

func (s *MessageService) Update(ctx context.Context, editorID string, id int64, in UpdateMessageInput) (domain.Message, error) {
	if err := s.ready(); err != nil {
		return domain.Message{}, err
	}
	if in.Content == nil && in.File == nil {
		return domain.Message{}, fmt.Errorf("%w: nothing to update", domain.ErrValidationFailed)
	}
	if err := validateStruct(in); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.messages.Update(ctx, id, editorID, repository.UpdateFields{Content: in.Content, FileRef: in.File})
	if err != nil {
		return domain.Message{}, err
	}
	s.cache.Invalidate(ctx, id)
	s.announce(ctx, domain.EventUpdatedMessage, msg)
	return msg, nil
}

// Delete hace soft delete; la fila queda para auditoría.
func (s *MessageService) Delete(ctx context.Context, requesterID string, id int64) (domain.Message, error) {
	if err := s.ready(); err != nil {
		return domain.Message{}, err
	}
	msg, err := s.messages.SoftDelete(ctx, id, requesterID)
	if err != nil {
		return domain.Message{}, err
	}
	s.cache.Invalidate(ctx, id)
	s.announce(ctx, domain.EventDeletedMessage, msg)
	return msg, nil
}

func (s *MessageService) Search(ctx context.Context, viewerID, query string, limit, offset int) ([]domain.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidationFailed)
	}
	return s.messages.Search(ctx, repository.SearchQuery{
		Text:     query,
		ViewerID: viewerID,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *MessageService) requireMember(ctx context.Context, groupID, userID string) error {
	ok, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of this group", domain.ErrNotAuthorized)
	}
	return nil
}

// announce corre después del commit. Un fallo no deshace la escritura: se
// loguea como cambio confirmado que no llegó a los streams.
func (s *MessageService) announce(ctx context.Context, t domain.EventType, msg domain.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, t, msg); err != nil {
		s.logger.Error("committed change not announced",
			zap.String("type", string(t)),
			zap.Int64("message_id", msg.ID),
			zap.String("group", msg.GroupID),
			zap.Error(err),
		)
	}
}
