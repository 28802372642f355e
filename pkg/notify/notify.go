// Package notify is the per-identity notification feed: a writer used
// by the mutating actions and a bounded, newest-first reader.
package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/traceon/traceond/pkg/metrics"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// DefaultLimit is how many feed entries a reader gets unless asked
// otherwise
const DefaultLimit = 10

// Feed is a read window over one identity's notifications
type Feed struct {
	Notifications []types.Notification `json:"notifications"`
	Unread        int                  `json:"unread"`
}

// Push writes a notification into recipient's feed. The recipient may
// be a uid or an email; either way the path segment is sanitized.
func Push(st store.Store, recipient string, n types.Notification) error {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}
	id := fmt.Sprintf("%d_%s", n.Timestamp, uuid.NewString()[:8])

	if err := st.Put(store.NotificationPath(store.SanitizeKey(recipient), id), n); err != nil {
		return err
	}
	metrics.NotificationsEmitted.WithLabelValues(string(n.Type)).Inc()
	return nil
}

// Load reads the newest limit notifications for recipient, descending
// by timestamp, with the unread count taken over the same window. A
// limit of zero or less falls back to DefaultLimit.
func Load(st store.Store, recipient string, limit int) (Feed, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	raw, err := st.Get(store.NotificationsPath(store.SanitizeKey(recipient)))
	if err != nil {
		return Feed{}, err
	}
	return window(raw, limit)
}

// Subscribe opens a standing watch on recipient's feed. Each snapshot
// decodes through Window.
func Subscribe(st store.Store, recipient string) (*store.Subscription, error) {
	return st.Subscribe(store.NotificationsPath(store.SanitizeKey(recipient)))
}

// Window turns a raw feed snapshot into a bounded Feed
func Window(value any, limit int) (Feed, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return window(value, limit)
}

func window(value any, limit int) (Feed, error) {
	collection, _ := value.(map[string]any)

	all := make([]types.Notification, 0, len(collection))
	for id, raw := range collection {
		var n types.Notification
		if err := store.Decode(raw, &n); err != nil {
			return Feed{}, fmt.Errorf("decode notification %s: %w", id, err)
		}
		n.ID = id
		all = append(all, n)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp > all[j].Timestamp
		}
		return all[i].ID > all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}

	feed := Feed{Notifications: all}
	for _, n := range all {
		if !n.Read {
			feed.Unread++
		}
	}
	return feed, nil
}

// MarkRead flags one notification as read
func MarkRead(st store.Store, recipient, notifID string) error {
	return st.Update(store.NotificationPath(store.SanitizeKey(recipient), notifID), map[string]any{
		"read": true,
	})
}
