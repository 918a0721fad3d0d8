package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunEvent is one persisted pipeline event: a stage transition, a provider
// outage, a regeneration. The table is the audit trail for a run; cancelled
// runs keep their events alongside already-collected evidence.
type RunEvent struct {
	ID        uuid.UUID `db:"id"`
	RunID     string    `db:"run_id"`
	Type      string    `db:"type"`
	Stage     string    `db:"stage"`
	Message   string    `db:"message"`
	Payload   JSONB     `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// Run event types.
const (
	EventStageTransition = "STAGE_TRANSITION"
	EventProviderOutage  = "PROVIDER_OUTAGE"
	EventRegeneration    = "REGENERATION"
	EventRunCancelled    = "RUN_CANCELLED"
)

/// SaveRunEvent inserts a run event row. Best-effort: callers log and drop
// the error, the audit trail never fails a stage.
func (c *Client) SaveRunEvent(ctx context.Context, e *RunEvent) error {
	if e == nil {
		return nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO run_events (id, run_id, type, stage, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.RunID, e.Type, e.Stage, e.Message, e.Payload, e.CreatedAt)
	return err
}

// ListRunEvents returns a run's events oldest first.
func (c *Client) ListRunEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	var events []RunEvent
	err := c.db.SelectContext(ctx, &events, `
		SELECT id, run_id, type, stage, message, payload, created_at
		FROM run_events WHERE run_id = $1 ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, persistErr("list run events", err)
	}
	return events, nil
}
