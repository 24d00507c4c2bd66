// Package postgres provides a PostgreSQL/pgvector-backed implementation of
// [retrieval.Index] over a table of transcript moments.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/overlapai/voicelink/internal/retrieval"
)

// Compile-time check that *Index satisfies [retrieval.Index].
var _ retrieval.Index = (*Index)(nil)

// Index is a pgvector HNSW nearest-neighbour index over transcript moments.
//
// All methods are safe for concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// NewIndex establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the embedding model
// (e.g., 1536 for OpenAI text-embedding-3-small). Changing this value after
// the first migration requires a manual schema change.
func NewIndex(ctx context.Context, dsn string, embeddingDimensions int) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres index: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres index: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres index: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres index: migrate: %w", err)
	}

	return &Index{pool: pool}, nil
}

// Close releases the connection pool.
func (i *Index) Close() {
	i.pool.Close()
}

// Ping verifies database connectivity. Used by readiness checks.
func (i *Index) Ping(ctx context.Context) error {
	if err := i.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// ddlMoments returns the DDL for the moments table with the configured
// embedding dimension.
func ddlMoments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS moments (
    id          BIGSERIAL    PRIMARY KEY,
    text        TEXT         NOT NULL,
    embedding   vector(%d),
    speaker     TEXT         NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_moments_embedding
    ON moments USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_moments_timestamp
    ON moments (timestamp);`, embeddingDimensions)
}

// Migrate creates or ensures the pgvector extension and the moments table
// exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlMoments(embeddingDimensions)); err != nil {
		return fmt.Errorf("create moments table: %w", err)
	}
	return nil
}

// Add stores one transcript moment with its pre-computed embedding.
func (i *Index) Add(ctx context.Context, text string, embedding []float32, speaker string, timestamp time.Time) error {
	const q = `
		INSERT INTO moments (text, embedding, speaker, timestamp)
		VALUES ($1, $2, $3, $4)`

	_, err := i.pool.Exec(ctx, q, text, pgvector.NewVector(embedding), speaker, timestamp)
	if err != nil {
		return fmt.Errorf("postgres index: add moment: %w", err)
	}
	return nil
}

// Query implements [retrieval.Index]. It returns the topK moments whose
// embeddings are closest (cosine distance) to the supplied query embedding,
// most similar first. Score is reported as 1 - cosine distance.
func (i *Index) Query(ctx context.Context, embedding []float32, topK int) ([]retrieval.Match, error) {
	const q = `
		SELECT text, timestamp, 1 - (embedding <=> $1) AS score
		FROM   moments
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := i.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres index: query: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (retrieval.Match, error) {
		var m retrieval.Match
		if err := row.Scan(&m.Text, &m.Timestamp, &m.Score); err != nil {
			return retrieval.Match{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres index: scan rows: %w", err)
	}
	if matches == nil {
		matches = []retrieval.Match{}
	}
	return matches, nil
}
