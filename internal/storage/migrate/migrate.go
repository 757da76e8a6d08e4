// Package migrate implements forward/backward SQL schema migrations with a
// tracked schema_migrations table. Versions are dense (1..N); each up/down
// pair runs inside a single transaction together with its version row.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Migration is one registered schema step for a specific dialect.
type Migration struct {
	Version int
	Name    string
	UpSQL   []string
	DownSQL []string
}

// Status is one row of the migration report.
type Status struct {
	Version int
	Name    string
	Applied bool
}

// Errors surfaced by the runner.
var (
	ErrGapDetected      = errors.New("migration gap detected")
	ErrDuplicateVersion = errors.New("duplicate migration version")
	ErrUnknownMigration = errors.New("database ahead of registered migrations")
)

// Runner applies registered migrations against a database handle.
type Runner struct {
	db         *sql.DB
	dialect    string // "sqlite" or "postgres"
	migrations []Migration
}

// NewRunner creates a Runner for db. Dialect selects placeholder style for
// the version-table statements.
func NewRunner(db *sql.DB, dialect string) *Runner {
	return &Runner{db: db, dialect: dialect}
}

// Register adds a migration. Registration fails on a duplicate version;
// the set is kept sorted by version.
func (r *Runner) Register(m Migration) error {
	for _, have := range r.migrations {
		if have.Version == m.Version {
			return fmt.Errorf("%w: %d (%s)", ErrDuplicateVersion, m.Version, m.Name)
		}
	}
	r.migrations = append(r.migrations, m)
	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})
	return nil
}

// placeholder returns the dialect's parameter marker for position n (1-based).
func (r *Runner) placeholder(n int) string {
	if r.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	return err
}

// Applied returns the set of applied versions mapped to names, in order.
func (r *Runner) Applied(ctx context.Context) (map[int]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT version, name FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var v int
		var name string
		if err := rows.Scan(&v, &name); err != nil {
			return nil, err
		}
		applied[v] = name
	}
	return applied, rows.Err()
}

// CurrentVersion returns the highest applied version, or 0 on a fresh DB.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// Up applies every unapplied migration with version <= target, in order.
// target 0 means newest. Each migration and its version row commit in one
// transaction; on SQL error the transaction rolls back and the version
// table is unchanged.
func (r *Runner) Up(ctx context.Context, target int) error {
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	current := 0
	for v := range applied {
		if v > current {
			current = v
		}
	}
	if target == 0 {
		target = r.maxVersion()
	}
	if current > r.maxVersion() {
		return fmt.Errorf("%w: database at %d, registered max %d", ErrUnknownMigration, current, r.maxVersion())
	}

	for _, m := range r.migrations {
		if m.Version > target {
			break
		}
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if m.Version != current+1 {
			return fmt.Errorf("%w: next applicable is %d, expected %d", ErrGapDetected, m.Version, current+1)
		}
		if err := r.applyUp(ctx, m); err != nil {
			return err
		}
		current = m.Version
	}
	return nil
}

func (r *Runner) applyUp(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.UpSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	insert := fmt.Sprintf(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (%s, %s, %s)`,
		r.placeholder(1), r.placeholder(2), r.placeholder(3))
	if _, err := tx.ExecContext(ctx, insert, m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		// A concurrent runner may have won the race on this version row;
		// the caller re-reads Status to discover the new state.
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// Down rolls back each applied migration with version > target, newest
// first, each transactionally deleting its version row.
func (r *Runner) Down(ctx context.Context, target int) error {
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	for v := range applied {
		if _, ok := r.byVersion(v); !ok {
			return fmt.Errorf("%w: applied version %d is not registered", ErrUnknownMigration, v)
		}
	}

	for i := len(r.migrations) - 1; i >= 0; i-- {
		m := r.migrations[i]
		if m.Version <= target {
			break
		}
		if _, ok := applied[m.Version]; !ok {
			continue
		}
		if err := r.applyDown(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) applyDown(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.DownSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rollback %d (%s): %w", m.Version, m.Name, err)
		}
	}
	del := fmt.Sprintf(`DELETE FROM schema_migrations WHERE version = %s`, r.placeholder(1))
	if _, err := tx.ExecContext(ctx, del, m.Version); err != nil {
		return fmt.Errorf("unrecord migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// Status returns (version, name, applied) for every registered migration.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		_, ok := applied[m.Version]
		out = append(out, Status{Version: m.Version, Name: m.Name, Applied: ok})
	}
	return out, nil
}

// Plan returns the versions Up(target) would apply, without mutating.
func (r *Runner) Plan(ctx context.Context, target int) ([]Status, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if target == 0 {
		target = r.maxVersion()
	}
	var plan []Status
	for _, m := range r.migrations {
		if m.Version > target {
			break
		}
		if _, ok := applied[m.Version]; ok {
			continue
		}
		plan = append(plan, Status{Version: m.Version, Name: m.Name})
	}
	return plan, nil
}

func (r *Runner) maxVersion() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

func (r *Runner) byVersion(v int) (Migration, bool) {
	for _, m := range r.migrations {
		if m.Version == v {
			return m, true
		}
	}
	return Migration{}, false
}
