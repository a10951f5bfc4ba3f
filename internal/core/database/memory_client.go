package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

// MemoryClient is an in-process DbClient with the same status and ordering
// rules as the Postgres client. Tests use it in place of a database.
type MemoryClient struct {
	mu            sync.RWMutex
	users         map[string]models.User // by email
	conversations map[string]models.Conversation
	documents     map[string]models.Document
	messages      map[string][]models.Message // by conversation
}

var _ DbClient = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		users:         make(map[string]models.User),
		conversations: make(map[string]models.Conversation),
		documents:     make(map[string]models.Document),
		messages:      make(map[string][]models.Message),
	}
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, ok := m.users[key]; ok {
		return fmt.Errorf("email %s: %w", user.Email, core.ErrConflict)
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[key] = *user
	return nil
}

func (m *MemoryClient) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, core.NotFoundf("user %s", email)
	}
	return &u, nil
}

func (m *MemoryClient) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = *conv
	return nil
}

func (m *MemoryClient) GetConversationForUser(_ context.Context, id, userID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, core.NotFoundf("conversation %s", id)
	}
	return copyConversation(c), nil
}

func (m *MemoryClient) ListConversationsByUser(_ context.Context, userID string) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Conversation{}
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, *copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryClient) SetConversationTitleIfEmpty(_ context.Context, id, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.Title != nil {
		return false, nil
	}
	c.Title = &title
	c.UpdatedAt = time.Now().UTC()
	m.conversations[id] = c
	return true, nil
}

func (m *MemoryClient) CreateDocuments(_ context.Context, docs []*models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if _, ok := m.conversations[d.ConversationID]; !ok {
			return core.NotFoundf("conversation %s", d.ConversationID)
		}
	}
	for _, d := range docs {
		m.documents[d.ID] = *d
	}
	return nil
}

func (m *MemoryClient) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, core.NotFoundf("document %s", id)
	}
	return &d, nil
}

func (m *MemoryClient) GetDocumentForUser(_ context.Context, id, userID string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok || m.conversations[d.ConversationID].UserID != userID {
		return nil, core.NotFoundf("document %s", id)
	}
	return &d, nil
}

func (m *MemoryClient) ListDocumentsByConversation(_ context.Context, conversationID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Document{}
	for _, d := range m.documents {
		if d.ConversationID == conversationID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryClient) CountDocumentsByConversation(ctx context.Context, conversationID string) (int, error) {
	docs, _ := m.ListDocumentsByConversation(ctx, conversationID)
	return len(docs), nil
}

func (m *MemoryClient) ListDocumentStatusesForUser(_ context.Context, ids []string, userID string) ([]models.DocumentStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DocumentStatus
	for _, id := range ids {
		d, ok := m.documents[id]
		if ok && m.conversations[d.ConversationID].UserID == userID {
			out = append(out, d.Status)
		}
	}
	return out, nil
}

func (m *MemoryClient) UpdateDocumentStatus(_ context.Context, id string, status models.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return core.NotFoundf("document %s", id)
	}
	if d.Status == models.StatusCompleted {
		return nil
	}
	d.Status = status
	d.Failure = ""
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

func (m *MemoryClient) FailDocument(_ context.Context, id string, kind models.FailureKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return core.NotFoundf("document %s", id)
	}
	if d.Status == models.StatusCompleted {
		return nil
	}
	d.Status = models.StatusFailed
	d.Failure = kind
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

func (m *MemoryClient) MarkDocumentsFailed(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		d, ok := m.documents[id]
		if !ok || d.Status == models.StatusCompleted {
			continue
		}
		d.Status = models.StatusFailed
		if d.Failure == "" {
			d.Failure = models.FailureTransient
		}
		d.UpdatedAt = time.Now().UTC()
		m.documents[id] = d
		n++
	}
	return n, nil
}

func (m *MemoryClient) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return core.NotFoundf("document %s", id)
	}
	delete(m.documents, id)
	return nil
}

func (m *MemoryClient) InsertMessagePair(_ context.Context, question, answer *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[question.ConversationID]
	if !ok {
		return core.NotFoundf("conversation %s", question.ConversationID)
	}
	m.messages[c.ID] = append(m.messages[c.ID], *question, *answer)
	c.UpdatedAt = time.Now().UTC()
	m.conversations[c.ID] = c
	return nil
}

func (m *MemoryClient) ListMessagesByConversation(_ context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Message, len(m.messages[conversationID]))
	copy(out, m.messages[conversationID])
	return out, nil
}

func copyConversation(c models.Conversation) *models.Conversation {
	if c.Title != nil {
		t := *c.Title
		c.Title = &t
	}
	return &c
}
