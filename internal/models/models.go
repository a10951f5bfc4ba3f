package models

import (
	"time"
)

// DocumentStatus is the processing state of an ingested document.
// PROCESSING is the only non-terminal value.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

// FailureKind tells whether a FAILED document may be picked up again when its
// job is re-delivered. Only TRANSIENT failures are.
type FailureKind string

const (
	FailureTransient FailureKind = "TRANSIENT"
	FailurePermanent FailureKind = "PERMANENT"
)

func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MessageRole identifies who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Conversation is a user's chat workspace. Title is set once, lazily,
// after the first answered question.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     *string   `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded file attached to a conversation.
type Document struct {
	ID             string         `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"chat_id"`
	FileName       string         `db:"file_name" json:"file_name"`
	ContentRef     string         `db:"content_ref" json:"content_ref"` // object key in the bucket
	ContentType    string         `db:"content_type" json:"content_type"`
	Status         DocumentStatus `db:"status" json:"status"`
	Failure        FailureKind    `db:"failure_kind" json:"failure,omitempty"` // set only while FAILED
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Retryable reports whether a re-delivered job should process the document again.
func (d *Document) Retryable() bool {
	switch d.Status {
	case StatusCompleted:
		return false
	case StatusFailed:
		return d.Failure != FailurePermanent
	default:
		return true
	}
}

// Message is an immutable chat message (user question or assistant answer).
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"chat_id"`
	Role           MessageRole `db:"role" json:"role"`
	Content        string      `db:"content" json:"content"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// StatusCounts aggregates document statuses for polling.
type StatusCounts struct {
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Add counts one document of the given status.
func (c *StatusCounts) Add(s DocumentStatus) {
	switch s {
	case StatusProcessing:
		c.Processing++
	case StatusCompleted:
		c.Completed++
	case StatusFailed:
		c.Failed++
	}
}

// ConversationDetail is a conversation with its documents and ordered messages.
type ConversationDetail struct {
	Conversation *Conversation `json:"conversation"`
	Documents    []Document    `json:"documents"`
	Messages     []Message     `json:"messages"`
}

// Source cites a retrieved chunk that grounded an answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Page       int     `json:"page"`
	Preview    string  `json:"preview"`
	Score      float32 `json:"score"`
}

// Answer is the result of asking a question in a conversation.
type Answer struct {
	Messages []Message `json:"messages"`
	Sources  []Source  `json:"sources"`
}
