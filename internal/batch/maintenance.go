package batch

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/db"
)

// maintenanceLockKey serializes batch runs across processes. Arbitrary but
// stable, distinct from the migration lock.
const maintenanceLockKey = 7741003

type trigger struct {
	table string
	name  string
}

// suspendedTriggers is the explicit list of triggers maintenance mode
// disables for the duration of a batch. Keep in sync with
// internal/crm/migrations/0002_audit.sql; a blanket DISABLE TRIGGER ALL
// would also drop constraint triggers, which must stay on.
var suspendedTriggers = []trigger{
	{table: "companies", name: "companies_audit"},
	{table: "contacts", name: "contacts_audit"},
	{table: "deals", name: "deals_audit"},
}

// MaintenanceGuard scopes trigger suspension to a batch run. Acquire takes
// an advisory lock and disables the listed triggers; Release restores them
// in reverse order on every exit path.
type MaintenanceGuard struct {
	pool     db.Pool
	disabled []trigger
	locked   bool
}

// NewMaintenanceGuard creates a guard over pool.
func NewMaintenanceGuard(pool db.Pool) *MaintenanceGuard {
	return &MaintenanceGuard{pool: pool}
}

// Acquire takes the batch advisory lock and suspends the audit triggers.
// A partial failure re-enables whatever was already disabled before
// returning the error.
func (g *MaintenanceGuard) Acquire(ctx context.Context) error {
	var locked bool
	if err := g.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", maintenanceLockKey).Scan(&locked); err != nil {
		return eris.Wrap(err, "batch: acquire maintenance lock")
	}
	if !locked {
		return eris.New("batch: another run holds the maintenance lock")
	}
	g.locked = true

	for _, t := range suspendedTriggers {
		stmt := fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER %s", t.table, t.name)
		if _, err := g.pool.Exec(ctx, stmt); err != nil {
			relErr := g.Release(ctx)
			if relErr != nil {
				zap.L().Error("batch: rollback of partial trigger suspension failed", zap.Error(relErr))
			}
			return eris.Wrapf(err, "batch: disable trigger %s on %s", t.name, t.table)
		}
		g.disabled = append(g.disabled, t)
	}

	zap.L().Info("batch: maintenance mode on", zap.Int("triggers_suspended", len(g.disabled)))
	return nil
}

// Release re-enables the suspended triggers in reverse order and drops the
// advisory lock. Every restore is attempted even when an earlier one
// fails; the first error is returned.
func (g *MaintenanceGuard) Release(ctx context.Context) error {
	var firstErr error

	for i := len(g.disabled) - 1; i >= 0; i-- {
		t := g.disabled[i]
		stmt := fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER %s", t.table, t.name)
		if _, err := g.pool.Exec(ctx, stmt); err != nil {
			zap.L().Error("batch: re-enable trigger failed",
				zap.String("table", t.table),
				zap.String("trigger", t.name),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "batch: enable trigger %s on %s", t.name, t.table)
			}
		}
	}
	g.disabled = nil

	if g.locked {
		if _, err := g.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", maintenanceLockKey); err != nil {
			zap.L().Error("batch: release maintenance lock failed", zap.Error(err))
			if firstErr == nil {
				firstErr = eris.Wrap(err, "batch: release maintenance lock")
			}
		}
		g.locked = false
	}

	if firstErr == nil {
		zap.L().Info("batch: maintenance mode off")
	}
	return firstErr
}
