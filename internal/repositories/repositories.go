// package repositories provides persistence layer implementations for all model types.
//
// Each repository owns the SQL for one aggregate; scrobble event state transitions made during a
// sync run go through [Batch] so they can be committed in groups.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NextSequence increments and returns the counter kept in the `<table>_sequence` table.
//
// Sequence numbers give scrobble events a stable creation order independent of UUIDs and clock skew.
// FetchPending delivers events in this order. Pass a *sql.Tx to tie the increment to the insert that uses it.
func NextSequence(ctx context.Context, q querier, table string) (int, error) {
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)

	var sequence int
	if err := q.QueryRowContext(ctx, query).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", table, err)
	}
	return sequence, nil
}
