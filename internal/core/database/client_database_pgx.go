package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config, log *slog.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		// Append SSL params to the provided DATABASE_URL safely.
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the pool so the pgvector index can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("email %s: %w", user.Email, core.ErrConflict)
	}
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("user %s", email)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	const q = `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.ExecContext(ctx, q, conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetConversationForUser(ctx context.Context, id, userID string) (*models.Conversation, error) {
	const q = `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`
	conv, err := scanConversation(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("conversation %s", id)
	}
	return conv, err
}

func (c *DatabaseClient) ListConversationsByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	const q = `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SetConversationTitleIfEmpty(ctx context.Context, id, title string) (bool, error) {
	const q = `
		UPDATE conversations
		SET title = $2, updated_at = now()
		WHERE id = $1 AND title IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, id, title)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv  models.Conversation
		title sql.NullString
	)
	if err := row.Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		conv.Title = &title.String
	}
	return &conv, nil
}

// Documents

func (c *DatabaseClient) CreateDocuments(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO documents
			(id, conversation_id, file_name, content_ref, content_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.ConversationID, d.FileName, d.ContentRef, d.ContentType, string(d.Status), d.CreatedAt, d.UpdatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const documentColumns = `d.id, d.conversation_id, d.file_name, d.content_ref, d.content_type, d.status, d.failure_kind, d.created_at, d.updated_at`

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d       models.Document
		status  string
		failure sql.NullString
	)
	if err := row.Scan(&d.ID, &d.ConversationID, &d.FileName, &d.ContentRef, &d.ContentType, &status, &failure, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = models.DocumentStatus(status)
	d.Failure = models.FailureKind(failure.String)
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents d WHERE d.id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("document %s", id)
	}
	return d, err
}

func (c *DatabaseClient) GetDocumentForUser(ctx context.Context, id, userID string) (*models.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents d
		JOIN conversations c ON c.id = d.conversation_id
		WHERE d.id = $1 AND c.user_id = $2
	`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("document %s", id)
	}
	return d, err
}

func (c *DatabaseClient) ListDocumentsByConversation(ctx context.Context, conversationID string) ([]models.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents d
		WHERE d.conversation_id = $1
		ORDER BY d.created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountDocumentsByConversation(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE conversation_id = $1`, conversationID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) ListDocumentStatusesForUser(ctx context.Context, ids []string, userID string) ([]models.DocumentStatus, error) {
	const q = `
		SELECT d.status
		FROM documents d
		JOIN conversations c ON c.id = d.conversation_id
		WHERE d.id = ANY($1) AND c.user_id = $2
	`
	rows, err := c.db.QueryContext(ctx, q, ids, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentStatus
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, models.DocumentStatus(s))
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	const q = `
		UPDATE documents
		SET status = $2, failure_kind = NULL, updated_at = now()
		WHERE id = $1 AND status <> 'COMPLETED'
	`
	res, err := c.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	return c.checkUpdated(ctx, id, res)
}

func (c *DatabaseClient) FailDocument(ctx context.Context, id string, kind models.FailureKind) error {
	const q = `
		UPDATE documents
		SET status = 'FAILED', failure_kind = $2, updated_at = now()
		WHERE id = $1 AND status <> 'COMPLETED'
	`
	res, err := c.db.ExecContext(ctx, q, id, string(kind))
	if err != nil {
		return err
	}
	return c.checkUpdated(ctx, id, res)
}

// checkUpdated tells a missing document apart from a COMPLETED one when a
// status update matched no row.
func (c *DatabaseClient) checkUpdated(ctx context.Context, id string, res sql.Result) error {
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	var exists bool
	if err := c.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return core.NotFoundf("document %s", id)
	}
	return nil
}

func (c *DatabaseClient) MarkDocumentsFailed(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `
		UPDATE documents
		SET status = 'FAILED', failure_kind = COALESCE(failure_kind, 'TRANSIENT'), updated_at = now()
		WHERE id = ANY($1) AND status <> 'COMPLETED'
	`
	res, err := c.db.ExecContext(ctx, q, ids)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("document %s", id)
	}
	return nil
}

// Messages

// InsertMessagePair writes the question and answer in one transaction and
// bumps the conversation's updated_at.
func (c *DatabaseClient) InsertMessagePair(ctx context.Context, question, answer *models.Message) error {
	if question == nil || answer == nil {
		return errors.New("nil message")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, m := range []*models.Message{question, answer} {
		if _, err := tx.ExecContext(ctx, q, m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, question.ConversationID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (c *DatabaseClient) ListMessagesByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, role DESC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var (
			m    models.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.MessageRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
