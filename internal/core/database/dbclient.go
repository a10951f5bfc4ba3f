package db

import (
	"context"

	"github.com/markdave123-py/contexta-chat/internal/models"
)

// DbClient defines all persistence operations your services will need.
// It abstracts Postgres so higher layers never depend on a specific DB.
// Lookups of absent rows fail with core.ErrNotFound.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	// GetConversationForUser is the single authoritative ownership check.
	GetConversationForUser(ctx context.Context, id, userID string) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	// SetConversationTitleIfEmpty sets the title only if none is set yet and
	// reports whether this call set it.
	SetConversationTitleIfEmpty(ctx context.Context, id, title string) (bool, error)

	// CreateDocuments inserts all documents in a single transaction.
	CreateDocuments(ctx context.Context, docs []*models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentForUser(ctx context.Context, id, userID string) (*models.Document, error)
	ListDocumentsByConversation(ctx context.Context, conversationID string) ([]models.Document, error)
	CountDocumentsByConversation(ctx context.Context, conversationID string) (int, error)
	ListDocumentStatusesForUser(ctx context.Context, ids []string, userID string) ([]models.DocumentStatus, error)
	// UpdateDocumentStatus never demotes a COMPLETED document. It clears any
	// recorded failure kind.
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error
	// FailDocument sets FAILED with the given kind unless the document is COMPLETED.
	FailDocument(ctx context.Context, id string, kind models.FailureKind) error
	// MarkDocumentsFailed sets FAILED on every listed document that is not
	// COMPLETED. A failure kind already recorded is kept, TRANSIENT otherwise.
	MarkDocumentsFailed(ctx context.Context, ids []string) (int64, error)
	DeleteDocument(ctx context.Context, id string) error

	// InsertMessagePair persists both messages atomically, in order.
	InsertMessagePair(ctx context.Context, question, answer *models.Message) error
	ListMessagesByConversation(ctx context.Context, conversationID string) ([]models.Message, error)

	Close() error
}
