package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-chat/internal/core"
	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

// InsufficientContext is the phrase the model is told to answer with when
// the retrieved context does not cover the question. Answers containing it
// carry no sources.
const InsufficientContext = "insufficient context"

const maxTitleRunes = 60

const answerSystemPrompt = `You are a helpful assistant answering questions about the user's documents.
Answer strictly from the provided context. Do not use outside knowledge.
Reply in plain conversational text without markdown.
If the context does not contain the answer, reply exactly: "I don't have sufficient context to answer that. (` + InsufficientContext + `)"`

const titleSystemPrompt = `Write a short title, at most six words, for a conversation that starts with the user's question.
Reply with the title only, no quotes or punctuation at the end.`

type QAConfig struct {
	TopK            int
	EmbedTimeout    time.Duration
	VectorTimeout   time.Duration
	CompleteTimeout time.Duration
	TitleTimeout    time.Duration
}

// QAService answers questions from a conversation's indexed documents.
type QAService struct {
	db       db.DbClient
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	index    core.VectorIndex
	cfg      QAConfig
	log      *slog.Logger

	titles sync.WaitGroup
	now    func() time.Time
}

func NewQAService(dbc db.DbClient, emb core.EmbeddingProvider, llm core.LLMProvider, index core.VectorIndex, cfg QAConfig, log *slog.Logger) *QAService {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	for _, d := range []*time.Duration{&cfg.EmbedTimeout, &cfg.VectorTimeout, &cfg.CompleteTimeout, &cfg.TitleTimeout} {
		if *d <= 0 {
			*d = 30 * time.Second
		}
	}
	return &QAService{
		db:       dbc,
		embedder: emb,
		llm:      llm,
		index:    index,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Answer runs retrieval and completion for one question and persists the
// USER/ASSISTANT pair. Nothing is written unless every outbound call succeeded.
func (s *QAService) Answer(ctx context.Context, userID, conversationID, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.Invalidf("question is empty")
	}

	conv, err := s.db.GetConversationForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	vecs, err := s.embedder.EmbedTexts(embedCtx, []string{question})
	cancel()
	if err != nil {
		return nil, core.Transient("embed", err)
	}
	if len(vecs) != 1 {
		return nil, core.Transient("embed", fmt.Errorf("got %d vectors for 1 question", len(vecs)))
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	matches, err := s.index.Query(queryCtx, conv.ID, vecs[0], s.cfg.TopK)
	cancel()
	if err != nil {
		return nil, core.Transient("vector query", err)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	completeCtx, cancel := context.WithTimeout(ctx, s.cfg.CompleteTimeout)
	reply, err := s.llm.Generate(completeCtx, answerSystemPrompt, buildUserPrompt(matches, question))
	cancel()
	if err != nil {
		return nil, core.Transient("complete", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, core.Transient("complete", errors.New("model returned an empty answer"))
	}

	asked := s.now()
	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        question,
		CreatedAt:      asked,
	}
	assistantMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        reply,
		CreatedAt:      asked.Add(time.Millisecond),
	}
	if err := s.db.InsertMessagePair(ctx, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("save messages: %w", err)
	}

	if conv.Title == nil {
		s.nameConversation(ctx, conv.ID, question)
	}

	return &models.Answer{
		Messages: []models.Message{*userMsg, *assistantMsg},
		Sources:  sourcesFor(reply, matches),
	}, nil
}

// Wait blocks until every scheduled title generation has finished.
func (s *QAService) Wait() {
	s.titles.Wait()
}

// nameConversation is advisory: it runs after the answer is returned, and
// any failure is logged, never reported to the caller. The store only sets
// a title that is still empty, so concurrent first questions name the
// conversation once.
func (s *QAService) nameConversation(ctx context.Context, conversationID, question string) {
	s.titles.Add(1)
	go func() {
		defer s.titles.Done()

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TitleTimeout)
		defer cancel()

		log := s.log.With("conversation_id", conversationID)

		raw, err := s.llm.Generate(tctx, titleSystemPrompt, question)
		if err != nil {
			log.Warn("title generation failed", "error", err)
			return
		}
		title := cleanTitle(raw)
		if title == "" {
			log.Warn("title generation returned nothing usable")
			return
		}

		set, err := s.db.SetConversationTitleIfEmpty(tctx, conversationID, title)
		if err != nil {
			log.Warn("saving conversation title failed", "error", err)
			return
		}
		if set {
			log.Debug("conversation titled", "title", title)
		}
	}()
}

func buildUserPrompt(matches []core.VectorMatch, question string) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if t := strings.TrimSpace(m.Metadata.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(texts, "\n\n"), question)
}

// IsInsufficient reports whether an answer carries the insufficient-context phrase.
func IsInsufficient(answer string) bool {
	return strings.Contains(strings.ToLower(answer), InsufficientContext)
}

func sourcesFor(answer string, matches []core.VectorMatch) []models.Source {
	sources := []models.Source{}
	if IsInsufficient(answer) {
		return sources
	}
	for _, m := range matches {
		sources = append(sources, models.Source{
			DocumentID: m.Metadata.DocumentID,
			FileName:   m.Metadata.FileName,
			Page:       m.Metadata.Page,
			Preview:    m.Metadata.Preview,
			Score:      m.Score,
		})
	}
	return sources
}

func cleanTitle(raw string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(raw), "\n")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*#. ")
	if r := []rune(line); len(r) > maxTitleRunes {
		line = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	return line
}
