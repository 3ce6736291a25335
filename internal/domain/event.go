package domain

import (
	"encoding/json"
	"errors"
)

type EventType string

const (
	EventNewMessage     EventType = "new_message"
	EventUpdatedMessage EventType = "updated_message"
	EventDeletedMessage EventType = "deleted_message"
)

func (t EventType) Valid() bool {
	switch t {
	case EventNewMessage, EventUpdatedMessage, EventDeletedMessage:
		return true
	}
	return false
}

// Event es lo que viaja por el bus y lo que recibe el cliente SSE.
type Event struct {
	Type EventType      `json:"type"`
	Data MessagePayload `json:"data"`
}

var ErrMalformedEvent = errors.New("malformed event")

func NewMessageEvent(t EventType, msg Message) Event {
	return Event{Type: t, Data: msg.Payload()}
}

func EncodeEvent(evt Event) ([]byte, error) {
	if !evt.Type.Valid() {
		return nil, ErrMalformedEvent
	}
	return json.Marshal(evt)
}

// DecodeEvent valida que el payload sea un evento conocido.
func DecodeEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, errors.Join(ErrMalformedEvent, err)
	}
	if !evt.Type.Valid() || evt.Data.ID <= 0 {
		return Event{}, ErrMalformedEvent
	}
	return evt, nil
}
