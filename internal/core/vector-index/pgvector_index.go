package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// PgVectorIndex stores vectors in the vector_records table, one namespace per
// conversation.
type PgVectorIndex struct {
	db *sql.DB
}

var _ core.VectorIndex = (*PgVectorIndex)(nil)

func NewPgVectorIndex(db *sql.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func (p *PgVectorIndex) Upsert(ctx context.Context, namespace string, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO vector_records (namespace, id, document_id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (namespace, id) DO UPDATE
		SET document_id = EXCLUDED.document_id,
		    embedding   = EXCLUDED.embedding,
		    metadata    = EXCLUDED.metadata,
		    updated_at  = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			namespace, r.ID, r.Metadata.DocumentID, pgvector.NewVector(r.Values), meta,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query ranks by cosine distance; the score is the cosine similarity.
func (p *PgVectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]core.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	const q = `
		SELECT id, 1 - (embedding <=> $2) AS score, metadata
		FROM vector_records
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, q, namespace, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.VectorMatch
	for rows.Next() {
		var (
			m     core.VectorMatch
			score float64
			meta  []byte
		)
		if err := rows.Scan(&m.ID, &score, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
		m.Score = float32(score)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PgVectorIndex) Delete(ctx context.Context, namespace string, filter core.VectorFilter) error {
	if filter.DocumentID == "" {
		_, err := p.db.ExecContext(ctx, `DELETE FROM vector_records WHERE namespace = $1`, namespace)
		return err
	}
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM vector_records WHERE namespace = $1 AND document_id = $2`,
		namespace, filter.DocumentID,
	)
	return err
}
