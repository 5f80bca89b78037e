// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/swarmlabs/swarm/internal/sqlitedriver" // registers "sqlite3" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration represents a single database migration step.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrator manages the transcript schema using embedded SQL files. A
// sync.Mutex prevents concurrent migration runs within the process; SQLite
// lock contention across processes is handled by busy_timeout.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	mu         sync.Mutex
}

// NewMigrator creates a migrator with the embedded SQL migrations.
// It sets PRAGMA busy_timeout = 5000 on the database to handle lock contention.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return &Migrator{db: db, migrations: migrations}, nil
}

// MigrateUp applies all pending migrations up to the latest version.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	currentVersion, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
	}
	return nil
}

// MigrateDown rolls back the specified number of migrations.
func (m *Migrator) MigrateDown(ctx context.Context, steps int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	currentVersion, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	rolled := 0
	for i := len(m.migrations) - 1; i >= 0 && rolled < steps; i-- {
		migration := m.migrations[i]
		if migration.Version > currentVersion {
			continue
		}
		if err := m.rollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("rollback of migration %d failed: %w", migration.Version, err)
		}
		rolled++
	}
	return nil
}

// CurrentVersion returns the highest applied migration version.
// Returns 0 if the schema_migrations table does not exist yet.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var tableCount int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'",
	).Scan(&tableCount); err != nil {
		return 0, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}
	if tableCount == 0 {
		return 0, nil
	}

	var version int
	err := m.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't
// exist. Uses INTEGER for applied_at since SQLite lacks TIMESTAMPTZ.
func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			description TEXT
		)
	`)
	return err
}

// applyMigration runs a single up migration within a transaction.
func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?) ON CONFLICT (version) DO NOTHING",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	return tx.Commit()
}

// rollbackMigration runs a single down migration within a transaction.
func (m *Migrator) rollbackMigration(ctx context.Context, migration Migration) error {
	if migration.DownSQL == "" {
		return fmt.Errorf("no down migration for version %d", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, migration.DownSQL); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_migrations WHERE version = ?", migration.Version,
	); err != nil {
		return fmt.Errorf("failed to remove migration version: %w", err)
	}

	return tx.Commit()
}

// loadMigrations reads all embedded SQL migration files and pairs up/down
// files. Filenames follow 000001_description.up.sql / .down.sql.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	upFiles := make(map[int]string)
	downFiles := make(map[int]string)
	descriptions := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		remainder := parts[1]
		if desc, ok := strings.CutSuffix(remainder, ".up.sql"); ok {
			descriptions[version] = desc
			upFiles[version] = string(content)
		} else if strings.HasSuffix(remainder, ".down.sql") {
			downFiles[version] = string(content)
		}
	}

	var versions []int
	for v := range upFiles {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	migrations := make([]Migration, 0, len(versions))
	for _, v := range versions {
		migrations = append(migrations, Migration{
			Version:     v,
			Description: descriptions[v],
			UpSQL:       upFiles[v],
			DownSQL:     downFiles[v],
		})
	}
	return migrations, nil
}
