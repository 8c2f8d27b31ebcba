package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSet is a ProcessedSet backed by a processed_messages table, for
// deployments that want dedup to survive restarts. The table is one column,
// created out of band:
//
//	CREATE TABLE processed_messages (message_guid TEXT PRIMARY KEY);
type PostgresSet struct {
	pool execer
}

func NewPostgresSet(pool *pgxpool.Pool) *PostgresSet {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PostgresSet{pool: pool}
}

func newPostgresSetWithExec(exec execer) *PostgresSet {
	if exec == nil {
		panic("events: exec required")
	}
	return &PostgresSet{pool: exec}
}

// MarkIfNew implements ProcessedSet. The insert-or-nothing makes the
// check-and-record atomic at the database.
func (s *PostgresSet) MarkIfNew(ctx context.Context, id string) (bool, error) {
	query := `
		INSERT INTO processed_messages (message_guid)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: postgres mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
