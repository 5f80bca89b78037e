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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmlabs/swarm/pkg/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "transcripts.db"), "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func msg(id, sender, content, roomID string, at time.Time) protocol.ChatMessage {
	return protocol.ChatMessage{
		MessageID:   id,
		MessageType: protocol.TypeUserMessage,
		Timestamp:   at,
		SenderID:    sender,
		SenderType:  "user",
		Content:     content,
		RoomID:      roomID,
	}
}

func TestAppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendMessage(ctx, msg("m1", "alice", "first", "", base)))
	require.NoError(t, store.AppendMessage(ctx, msg("m2", "bob", "second", "", base.Add(time.Second))))
	require.NoError(t, store.AppendMessage(ctx, msg("m3", "alice", "third", "", base.Add(2*time.Second))))

	got, err := store.RecentMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Content, "results are chronological")
	assert.Equal(t, "third", got[1].Content)
	assert.Equal(t, base.Add(time.Second), got[0].Timestamp)
}

func TestRoomMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.AppendMessage(ctx, msg("m1", "alice", "in room", "room-a", now)))
	require.NoError(t, store.AppendMessage(ctx, msg("m2", "alice", "elsewhere", "room-b", now)))

	got, err := store.RoomMessages(ctx, "room-a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in room", got[0].Content)
	assert.Equal(t, "room-a", got[0].RoomID)
}

func TestSenderMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.AppendMessage(ctx, msg("m1", "email", "agent reply", "", now)))
	require.NoError(t, store.AppendMessage(ctx, msg("m2", "code", "other agent", "", now)))

	got, err := store.SenderMessages(ctx, "email", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent reply", got[0].Content)
}

func TestMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := msg("m1", "email", "with metadata", "", time.Now().UTC())
	m.MessageType = protocol.TypeAgentMessage
	m.SenderType = "agent"
	m.Metadata = map[string]interface{}{"fallback": true, "model": "test-model"}
	require.NoError(t, store.AppendMessage(ctx, m))

	got, err := store.RecentMessages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, true, got[0].Metadata["fallback"])
	assert.Equal(t, "test-model", got[0].Metadata["model"])
	assert.Equal(t, protocol.TypeAgentMessage, got[0].MessageType)
}

func TestZeroTimestampDefaultsToNow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := msg("m1", "alice", "no timestamp", "", time.Time{})
	require.NoError(t, store.AppendMessage(ctx, m))

	got, err := store.RecentMessages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.WithinDuration(t, time.Now().UTC(), got[0].Timestamp, 5*time.Second)
}
