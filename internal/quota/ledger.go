package quota

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/config"
	"scribe/internal/tier"
)

const ledgerFile = "ledger.db"

// Ledger tracks per-owner consumed units against tier limits. Usage is
// committed only after a job completes successfully; admission compares
// projected usage without reserving anything.
type Ledger struct {
	db       *sql.DB
	catalog  *tier.Catalog
	deferred *deferredCommits
	now      func() time.Time
}

// Open opens (or creates) the quota ledger database under the state directory.
func Open(cfg *config.Config, catalog *tier.Catalog) (*Ledger, error) {
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, ledgerFile), catalog)
}

// OpenPath opens the quota ledger at an explicit path.
func OpenPath(path string, catalog *tier.Catalog) (*Ledger, error) {
	if catalog == nil {
		return nil, fmt.Errorf("quota ledger requires a tier catalog")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	ledger := &Ledger{
		db:       db,
		catalog:  catalog,
		deferred: newDeferredCommits(),
		now:      time.Now,
	}
	if err := ledger.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS usage (
    owner_id TEXT NOT NULL,
    period TEXT NOT NULL,
    unit TEXT NOT NULL,
    used REAL NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (owner_id, period, unit)
);
CREATE TABLE IF NOT EXISTS commits (
    job_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    units REAL NOT NULL,
    committed_at TEXT NOT NULL
);`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Period returns the current billing period identifier. Usage resets at
// period boundaries simply by accruing under a new key; an external scheduler
// owns any archival of old periods.
func (l *Ledger) Period() string {
	return l.now().UTC().Format("2006-01")
}

// unitFor maps a job kind to the quota unit its usage accrues under.
func unitFor(kind string) string {
	if kind == "transcribe" {
		return "hours"
	}
	return "jobs"
}

// UnitsFor computes how many quota units a job consumes. Transcription is
// metered in hours of audio; analysis kinds count one job each.
func UnitsFor(kind string, durationSeconds float64) float64 {
	if kind == "transcribe" {
		if durationSeconds < 0 {
			durationSeconds = 0
		}
		return durationSeconds / 3600
	}
	return 1
}

// WouldExceed reports whether adding estimatedUnits to the owner's usage for
// the current period would break their tier ceiling. Unlimited tiers never
// exceed.
func (l *Ledger) WouldExceed(ctx context.Context, ownerID, kind string, estimatedUnits float64) (bool, error) {
	limits := l.catalog.LimitsFor(ownerID)
	ceiling := limits.UnitLimit(kind)
	if ceiling == tier.Unlimited {
		return false, nil
	}

	used, err := l.Used(ctx, ownerID, kind)
	if err != nil {
		return false, err
	}
	return used+estimatedUnits > ceiling, nil
}

// Used returns the owner's consumed units for a job kind in the current period.
func (l *Ledger) Used(ctx context.Context, ownerID, kind string) (float64, error) {
	var used float64
	err := l.db.QueryRowContext(
		ctx,
		`SELECT used FROM usage WHERE owner_id = ? AND period = ? AND unit = ?`,
		ownerID,
		l.Period(),
		unitFor(kind),
	).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage for owner %s: %w", ownerID, err)
	}
	return used, nil
}

// Commit records actual usage for a completed job. Idempotent per job id: a
// replayed completion event finds the commit row and accrues nothing.
func (l *Ledger) Commit(ctx context.Context, jobID, ownerID, kind string, actualUnits float64) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := l.now().UTC().Format(time.RFC3339Nano)
	result, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO commits (job_id, owner_id, unit, units, committed_at)
         VALUES (?, ?, ?, ?, ?)`,
		jobID,
		ownerID,
		unitFor(kind),
		actualUnits,
		now,
	)
	if err != nil {
		return fmt.Errorf("record commit for job %s: %w", jobID, err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		// Already committed by an earlier delivery of the completion event.
		return tx.Commit()
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO usage (owner_id, period, unit, used, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (owner_id, period, unit)
         DO UPDATE SET used = used + excluded.used, updated_at = excluded.updated_at`,
		ownerID,
		l.Period(),
		unitFor(kind),
		actualUnits,
		now,
	)
	if err != nil {
		return fmt.Errorf("accrue usage for owner %s: %w", ownerID, err)
	}
	return tx.Commit()
}

// CommitOrDefer commits usage, and on failure parks the commit for a later
// Reconcile pass instead of surfacing the error. The job stays complete from
// the owner's perspective either way; quota accrual must never block workers.
func (l *Ledger) CommitOrDefer(ctx context.Context, jobID, ownerID, kind string, actualUnits float64) error {
	err := l.Commit(ctx, jobID, ownerID, kind, actualUnits)
	if err == nil {
		return nil
	}
	l.deferred.add(pendingCommit{
		JobID:   jobID,
		OwnerID: ownerID,
		Kind:    kind,
		Units:   actualUnits,
	})
	return err
}

// Reconcile retries deferred commits. Commits that still fail stay parked.
// Returns how many commits were flushed.
func (l *Ledger) Reconcile(ctx context.Context) int {
	pending := l.deferred.drain()
	flushed := 0
	for _, p := range pending {
		if err := l.Commit(ctx, p.JobID, p.OwnerID, p.Kind, p.Units); err != nil {
			l.deferred.add(p)
			continue
		}
		flushed++
	}
	return flushed
}

// PendingCommits reports how many commits await reconciliation.
func (l *Ledger) PendingCommits() int {
	return l.deferred.len()
}
