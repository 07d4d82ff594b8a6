package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klikkflow/collab/internal/op"
)

// Operations returns the room's finalized stream in a deterministic order.
//
// ORDER BY seq ASC, id ASC: seq captures finalization order; the id
// tie-break keeps the order stable even if rows were ever merged from two
// journals.
func (r *RoomJournal) Operations(ctx context.Context) ([]op.Operation, error) {
	rows, err := r.journal.db.QueryContext(ctx, `
		SELECT body FROM operations
		WHERE room_id = ?
		ORDER BY seq ASC, id ASC
	`, r.roomID)
	if err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}
	defer rows.Close()

	var ops []op.Operation
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("journal read: scan: %w", err)
		}
		var o op.Operation
		if err := json.Unmarshal([]byte(body), &o); err != nil {
			return nil, fmt.Errorf("journal read: decode: %w", err)
		}
		ops = append(ops, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}
	return ops, nil
}

// Replay streams the room's finalized operations, in order, to fn.
// Stops at the first error from fn.
func (r *RoomJournal) Replay(ctx context.Context, fn func(op.Operation) error) error {
	ops, err := r.Operations(ctx)
	if err != nil {
		return err
	}
	for _, o := range ops {
		if err := fn(o); err != nil {
			return fmt.Errorf("journal replay: op %s: %w", o.ID, err)
		}
	}
	return nil
}

// Count returns the number of journaled operations for the room.
func (r *RoomJournal) Count(ctx context.Context) (int, error) {
	var n int
	err := r.journal.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM operations WHERE room_id = ?`, r.roomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal count: %w", err)
	}
	return n, nil
}
