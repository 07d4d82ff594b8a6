package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klikkflow/collab/internal/op"
)

// Append inserts a finalized operation for the bound room.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: operation ids are
// content-addressed, so a redelivered operation is byte-identical and
// silently ignored.
func (r *RoomJournal) Append(ctx context.Context, o op.Operation) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("journal append: marshal %s: %w", o.ID, err)
	}

	_, err = r.journal.db.ExecContext(ctx, `
		INSERT INTO operations
		(room_id, id, kind, target_id, origin_session, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.roomID,
		o.ID,
		string(o.Kind),
		o.TargetID,
		o.OriginSession,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

// Truncate removes every journaled operation for the bound room.
// Called when the room closes; the journal is a catch-up log, not history.
func (r *RoomJournal) Truncate(ctx context.Context) error {
	if _, err := r.journal.db.ExecContext(ctx,
		`DELETE FROM operations WHERE room_id = ?`, r.roomID); err != nil {
		return fmt.Errorf("journal truncate: %w", err)
	}
	return nil
}
