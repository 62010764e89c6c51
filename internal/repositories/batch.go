package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/scrobblex/internal/models"
)

type batchOpKind int

const (
	opProcessed batchOpKind = iota
	opErrored
	opQuarantine
)

type batchOp struct {
	kind    batchOpKind
	event   *models.ScrobbleEvent
	version time.Time // updated_at of the row as it was delivered
	record  *models.ScrobbleError
	msg     string
	at      time.Time
}

// Batch implements [models.UnitOfWork] over sqlite.
//
// Staged writes are applied in one transaction on Commit. A failed commit keeps the staged writes.
// An event transition only applies to the row version that was read: when the recorder overwrote the
// pending row after it was fetched, the row stays pending and its new values go out on the next run.
type Batch struct {
	db         *sql.DB
	ops        []batchOp
	superseded int
}

var _ models.UnitOfWork = (*Batch)(nil)

// MarkProcessed transitions evt in memory and stages the update.
func (b *Batch) MarkProcessed(evt *models.ScrobbleEvent, at time.Time) error {
	if err := evt.MarkProcessed(at); err != nil {
		return err
	}
	b.ops = append(b.ops, batchOp{kind: opProcessed, event: evt, version: evt.UpdatedAt().UTC(), at: at.UTC()})
	return nil
}

// MarkErrored transitions evt in memory and stages the update.
func (b *Batch) MarkErrored(evt *models.ScrobbleEvent, msg string, at time.Time) error {
	if err := evt.MarkErrored(msg, at); err != nil {
		return err
	}
	b.ops = append(b.ops, batchOp{kind: opErrored, event: evt, version: evt.UpdatedAt().UTC(), msg: msg, at: at.UTC()})
	return nil
}

// Quarantine stages an error record insert.
func (b *Batch) Quarantine(rec *models.ScrobbleError) {
	b.ops = append(b.ops, batchOp{kind: opQuarantine, record: rec})
}

// Len reports the number of staged writes.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Superseded reports how many committed transitions found their row edited since it was read.
func (b *Batch) Superseded() int {
	return b.superseded
}

// Commit applies all staged writes in a single transaction.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	superseded := 0
	for _, op := range b.ops {
		var res sql.Result
		switch op.kind {
		case opProcessed:
			res, err = tx.ExecContext(ctx,
				`UPDATE scrobble_events SET processed = 1, processed_at = ?
				WHERE id = ? AND processed = 0 AND errored = 0 AND updated_at = ?`,
				op.at, op.event.ID(), op.version)
		case opErrored:
			res, err = tx.ExecContext(ctx,
				`UPDATE scrobble_events SET errored = 1, error_message = ?, processed_at = ?
				WHERE id = ? AND processed = 0 AND errored = 0 AND updated_at = ?`,
				op.msg, op.at, op.event.ID(), op.version)
		case opQuarantine:
			_, err = insertError(ctx, tx, op.record)
		}
		if err != nil {
			return fmt.Errorf("failed to apply batched write: %w", err)
		}

		if res != nil {
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read batched write result: %w", err)
			}
			if n == 0 {
				superseded++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	b.ops = b.ops[:0]
	b.superseded += superseded
	return nil
}
