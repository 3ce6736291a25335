package domain

import "time"

type Group struct {
	ID        string    `json:"uuid"`
	CreatedAt time.Time `json:"created_date"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant une un usuario a un grupo. El par (GroupID, UserID) es único.
type Participant struct {
	GroupID  string    `json:"group_uuid"`
	UserID   string    `json:"user_uuid"`
	JoinedAt time.Time `json:"joined_at"`
}
