package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one chat entry on a complaint thread. SenderRole and SenderName
// are copied from the sender's profile when the message is written.
type Message struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	ComplaintID string    `gorm:"type:text;not null;index:idx_message_thread" json:"complaint_id"`
	SenderID    string    `gorm:"type:text;not null" json:"sender_id"`
	SenderRole  Role      `gorm:"type:text;not null" json:"sender_role"`
	SenderName  string    `gorm:"not null" json:"sender_name"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	CreatedAt   time.Time `gorm:"index:idx_message_thread" json:"created_at"`
	// Seq breaks ties between messages stored within the same instant.
	Seq uint64 `gorm:"autoIncrement;not null" json:"seq"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// WorkNote is a maintenance-internal annotation. It has the shape of a
// Message but lives in its own log.
type WorkNote struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	ComplaintID string    `gorm:"type:text;not null;index:idx_note_thread" json:"complaint_id"`
	AuthorID    string    `gorm:"type:text;not null" json:"author_id"`
	AuthorRole  Role      `gorm:"type:text;not null" json:"author_role"`
	AuthorName  string    `gorm:"not null" json:"author_name"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	CreatedAt   time.Time `gorm:"index:idx_note_thread" json:"created_at"`
	Seq         uint64    `gorm:"autoIncrement;not null" json:"seq"`
}

func (n *WorkNote) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}

// MessageEvent is the live-push envelope published on a complaint's
// channel. Type is "message" for a new chat entry and "error" for a
// rejected post, which is only sent back to its author.
type MessageEvent struct {
	Type        string   `json:"type"`
	ComplaintID string   `json:"complaint_id"`
	Message     *Message `json:"message,omitempty"`
	Error       string   `json:"error,omitempty"`
}

const (
	EventMessage = "message"
	EventError   = "error"
)
