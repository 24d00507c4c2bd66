package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/overlapai/voicelink/internal/retrieval/postgres"
)

const testEmbeddingDim = 4

// newTestIndex creates a fresh [postgres.Index] with an empty moments table
// against the database named in VOICELINK_TEST_POSTGRES_DSN, or skips the
// test when the variable is unset.
func newTestIndex(t *testing.T) *postgres.Index {
	t.Helper()
	dsn := os.Getenv("VOICELINK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICELINK_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	ctx := context.Background()

	// Drop leftovers from previous runs with a bare pool so each test starts
	// from a clean table.
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect for cleanup: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS moments`); err != nil {
		pool.Close()
		t.Fatalf("drop moments table: %v", err)
	}
	pool.Close()

	idx, err := postgres.NewIndex(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(idx.Close)
	return idx
}

func TestIndex_AddAndQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	moments := []struct {
		text string
		vec  []float32
	}{
		{"the harbor master raised the toll", []float32{1, 0, 0, 0}},
		{"we discussed the ferry schedule", []float32{0, 1, 0, 0}},
		{"dinner plans for friday", []float32{0, 0, 1, 0}},
	}
	for _, m := range moments {
		if err := idx.Add(ctx, m.text, m.vec, "p1", now); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := idx.Query(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query returned %d matches, want 2", len(got))
	}
	if got[0].Text != "the harbor master raised the toll" {
		t.Errorf("closest match = %q, want the harbor moment", got[0].Text)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("matches not ordered by descending score: %v then %v", got[0].Score, got[1].Score)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("match timestamp not populated")
	}
}

func TestIndex_QueryEmptyTable(t *testing.T) {
	idx := newTestIndex(t)

	got, err := idx.Query(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Query on empty table returned %d matches, want 0", len(got))
	}
}
