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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp(t *testing.T) {
	db := openTestDB(t)
	m, err := NewMigrator(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.MigrateUp(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='messages'",
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigrateUpIdempotent(t *testing.T) {
	db := openTestDB(t)
	m, err := NewMigrator(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.MigrateUp(ctx))
	require.NoError(t, m.MigrateUp(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	m, err := NewMigrator(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.MigrateUp(ctx))
	require.NoError(t, m.MigrateDown(ctx, 1))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='messages'",
	).Scan(&count))
	assert.Equal(t, 0, count)
}
