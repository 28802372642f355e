package notify

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPushAndLoad(t *testing.T) {
	st := newTestStore(t)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, Push(st, "uid-1", types.Notification{
			Type:      types.NotifStatusUpdate,
			Message:   "update",
			Timestamp: 1000 * i,
		}))
	}

	feed, err := Load(st, "uid-1", 0)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 3)
	assert.Equal(t, int64(3000), feed.Notifications[0].Timestamp)
	assert.Equal(t, int64(1000), feed.Notifications[2].Timestamp)
	assert.Equal(t, 3, feed.Unread)
}

func TestLoadWindowAndUnread(t *testing.T) {
	st := newTestStore(t)

	for i := int64(1); i <= 15; i++ {
		require.NoError(t, Push(st, "uid-1", types.Notification{
			Type:      types.NotifStatusUpdate,
			Timestamp: 1000 * i,
			Read:      i <= 12,
		}))
	}

	feed, err := Load(st, "uid-1", 0)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, DefaultLimit)
	assert.Equal(t, int64(15000), feed.Notifications[0].Timestamp)
	assert.Equal(t, int64(6000), feed.Notifications[9].Timestamp)
	// entries 13..15 are unread and inside the window
	assert.Equal(t, 3, feed.Unread)

	feed, err = Load(st, "uid-1", 5)
	require.NoError(t, err)
	assert.Len(t, feed.Notifications, 5)
}

func TestEmailRecipientSanitized(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, Push(st, "alice@example.com", types.Notification{
		Type: types.NotifParcelCreated, Timestamp: 1000,
	}))

	raw, err := st.Get(store.NotificationsPath("alice@example_com"))
	require.NoError(t, err)
	assert.NotNil(t, raw)

	feed, err := Load(st, "alice@example.com", 0)
	require.NoError(t, err)
	assert.Len(t, feed.Notifications, 1)
}

func TestMarkRead(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, Push(st, "uid-1", types.Notification{
		Type: types.NotifAssignment, Timestamp: 1000,
	}))

	feed, err := Load(st, "uid-1", 0)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	require.Equal(t, 1, feed.Unread)

	require.NoError(t, MarkRead(st, "uid-1", feed.Notifications[0].ID))

	feed, err = Load(st, "uid-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, feed.Unread)
	assert.True(t, feed.Notifications[0].Read)
}

func TestEmptyFeed(t *testing.T) {
	st := newTestStore(t)

	feed, err := Load(st, "uid-none", 0)
	require.NoError(t, err)
	assert.Empty(t, feed.Notifications)
	assert.Zero(t, feed.Unread)
}
