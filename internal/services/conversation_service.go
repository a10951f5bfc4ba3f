package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

type ConversationService struct {
	db db.DbClient
}

func NewConversationService(dbc db.DbClient) *ConversationService {
	return &ConversationService{db: dbc}
}

func (s *ConversationService) Create(ctx context.Context, userID string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// List returns the caller's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.db.ListConversationsByUser(ctx, userID)
}

// Get loads an owned conversation with its documents and its messages in
// creation order.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*models.ConversationDetail, error) {
	conv, err := s.db.GetConversationForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	detail := &models.ConversationDetail{Conversation: conv}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.db.ListDocumentsByConversation(gctx, conv.ID)
		detail.Documents = docs
		return err
	})
	g.Go(func() error {
		msgs, err := s.db.ListMessagesByConversation(gctx, conv.ID)
		detail.Messages = msgs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}
