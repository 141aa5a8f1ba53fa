package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/db"
)

// RunLog records batch runs in resolution_runs so operators can audit
// history and incremental runs can pick up where the last success left off.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a run log over pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start inserts a running row and returns its id.
func (l *RunLog) Start(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx,
		"INSERT INTO resolution_runs (id, status) VALUES ($1, 'running')", id)
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "runlog: start")
	}
	return id, nil
}

// Complete marks the run finished and stores its counters.
func (l *RunLog) Complete(ctx context.Context, id uuid.UUID, rep *Report) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE resolution_runs
		SET status = 'complete', completed_at = now(),
		    processed = $2, succeeded = $3, flagged = $4, errors = $5
		WHERE id = $1`,
		id, rep.Processed, rep.Succeeded, rep.Flagged, rep.Errors)
	if err != nil {
		return eris.Wrap(err, "runlog: complete")
	}
	return nil
}

// Fail marks the run failed with the cause.
func (l *RunLog) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := l.pool.Exec(ctx, `
		UPDATE resolution_runs
		SET status = 'failed', completed_at = now(), error = $2
		WHERE id = $1`,
		id, msg)
	if err != nil {
		return eris.Wrap(err, "runlog: fail")
	}
	return nil
}

// LastSuccess returns the start time of the most recent completed run, or
// the zero time when no run has completed yet.
func (l *RunLog) LastSuccess(ctx context.Context) (time.Time, error) {
	var started time.Time
	err := l.pool.QueryRow(ctx, `
		SELECT started_at FROM resolution_runs
		WHERE status = 'complete'
		ORDER BY started_at DESC
		LIMIT 1`).Scan(&started)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrap(err, "runlog: last success")
	}
	return started, nil
}
