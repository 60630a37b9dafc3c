package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"dictakey/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	seq              BIGSERIAL PRIMARY KEY,
	id               TEXT NOT NULL UNIQUE,
	text             TEXT NOT NULL,
	enhanced_text    TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	audio_path       TEXT NOT NULL DEFAULT '',
	model_name       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	failed           BOOLEAN NOT NULL DEFAULT FALSE,
	error            TEXT NOT NULL DEFAULT '',
	retry_of         TEXT NOT NULL DEFAULT ''
)`

const selectColumns = `id, text, enhanced_text, duration_seconds, audio_path, model_name, created_at, failed, error, retry_of`

// Postgres stores records in a transcriptions table. Insertion order is kept by seq.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Append(ctx context.Context, r domain.TranscriptionRecord) error {
	if r.ID == "" {
		return ErrMissingID
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO transcriptions (`+selectColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Text, r.EnhancedText, r.DurationSeconds, r.AudioPath, r.ModelName, r.CreatedAt, r.Failed, r.Error, r.RetryOf,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (p *Postgres) Latest(ctx context.Context) (domain.TranscriptionRecord, bool, error) {
	records, err := p.Recent(ctx, 1)
	if err != nil || len(records) == 0 {
		return domain.TranscriptionRecord{}, false, err
	}
	return records[0], true, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]domain.TranscriptionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM transcriptions ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscriptionRecord
	for rows.Next() {
		var r domain.TranscriptionRecord
		if err := rows.Scan(&r.ID, &r.Text, &r.EnhancedText, &r.DurationSeconds, &r.AudioPath,
			&r.ModelName, &r.CreatedAt, &r.Failed, &r.Error, &r.RetryOf); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
