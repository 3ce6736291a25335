package domain

import "time"

const (
	MessageContentMaxLen = 10000
	MessageFileRefMaxLen = 500
	UnknownSenderName    = "Unknown"
)

// MessageState es el estado explícito de un mensaje: activo o borrado (soft delete).
type MessageState int

const (
	MessageActive MessageState = iota
	MessageDeleted
)

func (s MessageState) String() string {
	if s == MessageDeleted {
		return "deleted"
	}
	return "active"
}

// Message es un mensaje persistido dentro de un grupo.
// ID y CreatedAt los asigna el store y nunca cambian.
type Message struct {
	ID         int64
	GroupID    string
	SenderID   string
	SenderName string
	Content    string
	FileRef    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	State      MessageState
}

func (m Message) IsDeleted() bool {
	return m.State == MessageDeleted
}

// MessagePayload es la forma estable con la que un mensaje sale por HTTP y por el bus.
type MessagePayload struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	File       *string   `json:"file"`
	GroupID    string    `json:"group_uuid"`
	SenderID   string    `json:"sender_uuid"`
	SenderName string    `json:"sender_name"`
	CreatedAt  time.Time `json:"created_date"`
	UpdatedAt  time.Time `json:"updated_at"`
	IsDeleted  bool      `json:"is_deleted"`
}

func (m Message) Payload() MessagePayload {
	name := m.SenderName
	if name == "" {
		name = UnknownSenderName
	}
	return MessagePayload{
		ID:         m.ID,
		Content:    m.Content,
		File:       m.FileRef,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderName: name,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		IsDeleted:  m.IsDeleted(),
	}
}

// ToMessage reconstruye un Message desde su payload (cache, eventos).
func (p MessagePayload) ToMessage() Message {
	state := MessageActive
	if p.IsDeleted {
		state = MessageDeleted
	}
	return Message{
		ID:         p.ID,
		GroupID:    p.GroupID,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Content:    p.Content,
		FileRef:    p.File,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		State:      state,
	}
}
