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

// Package sqlite persists chat transcripts. The schema is managed by the
// embedded migrator; the store is safe for concurrent use.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swarmlabs/swarm/internal/sqlitedriver"
	"github.com/swarmlabs/swarm/pkg/protocol"
)

// Store is the transcript store backed by a single SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the transcript database at path and
// applies pending migrations. A non-empty encryptionKey requires the
// SQLCipher build of the driver; passing one to an unencrypted build is an
// error rather than a silently plaintext database.
func Open(path, encryptionKey string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	if encryptionKey != "" {
		if !sqlitedriver.EncryptionSupported {
			db.Close()
			return nil, fmt.Errorf("transcript encryption requested but driver built without SQLCipher")
		}
		// PRAGMA does not accept bound parameters; escape embedded quotes.
		escaped := strings.ReplaceAll(encryptionKey, "'", "''")
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s'", escaped)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply encryption key: %w", err)
		}
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("transcript store opened", zap.String("path", path),
		zap.Bool("encrypted", encryptionKey != ""))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendMessage writes one chat message to the transcript.
func (s *Store) AppendMessage(ctx context.Context, msg protocol.ChatMessage) error {
	var metadata []byte
	if msg.Metadata != nil {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode message metadata: %w", err)
		}
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(message_id, message_type, created_at, sender_id, sender_type, content, metadata, room_id, recipient_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, string(msg.MessageType), ts.UnixMilli(),
		msg.SenderID, msg.SenderType, msg.Content,
		nullableString(string(metadata)), nullableString(msg.RoomID), nullableString(msg.RecipientID),
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent messages across all rooms, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]protocol.ChatMessage, error) {
	return s.query(ctx, `
		SELECT message_id, message_type, created_at, sender_id, sender_type, content, metadata, room_id, recipient_id
		FROM messages ORDER BY created_at DESC, message_id DESC LIMIT ?`, limit)
}

// RoomMessages returns the most recent messages in one room, oldest first.
func (s *Store) RoomMessages(ctx context.Context, roomID string, limit int) ([]protocol.ChatMessage, error) {
	return s.query(ctx, `
		SELECT message_id, message_type, created_at, sender_id, sender_type, content, metadata, room_id, recipient_id
		FROM messages WHERE room_id = ? ORDER BY created_at DESC, message_id DESC LIMIT ?`, roomID, limit)
}

// SenderMessages returns the most recent messages from one sender, oldest
// first.
func (s *Store) SenderMessages(ctx context.Context, senderID string, limit int) ([]protocol.ChatMessage, error) {
	return s.query(ctx, `
		SELECT message_id, message_type, created_at, sender_id, sender_type, content, metadata, room_id, recipient_id
		FROM messages WHERE sender_id = ? ORDER BY created_at DESC, message_id DESC LIMIT ?`, senderID, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]protocol.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []protocol.ChatMessage
	for rows.Next() {
		var (
			msg       protocol.ChatMessage
			msgType   string
			createdAt int64
			metadata  sql.NullString
			roomID    sql.NullString
			recipient sql.NullString
		)
		if err := rows.Scan(&msg.MessageID, &msgType, &createdAt, &msg.SenderID,
			&msg.SenderType, &msg.Content, &metadata, &roomID, &recipient); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.MessageType = protocol.MessageType(msgType)
		msg.Timestamp = time.UnixMilli(createdAt).UTC()
		msg.RoomID = roomID.String
		msg.RecipientID = recipient.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				s.logger.Warn("skipping undecodable message metadata",
					zap.String("message_id", msg.MessageID), zap.Error(err))
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Queries return newest first for the LIMIT; flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
