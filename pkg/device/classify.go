package device

import (
	"sort"
	"strings"
	"time"

	"github.com/traceon/traceond/pkg/types"
)

// OfflineAfter is the default silence window before a device counts as
// offline. The firmware heartbeats every 30 seconds, so two minutes
// means four missed beats.
const OfflineAfter = 120 * time.Second

// ParseMillis extracts a unix-millisecond value from a firmware
// timestamp string. Firmware builds have written trailing garbage
// after the digits, so the longest leading integer wins; anything
// without one parses to 0.
func ParseMillis(s string) int64 {
	s = strings.TrimSpace(s)
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	seen := false
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
		seen = true
	}
	if !seen {
		return 0
	}
	if neg {
		return -n
	}
	return n
}

// Classify derives a device's liveness at a given instant. The
// declared status survives for assigned devices even when the device
// has gone quiet, because the parcel binding must not silently drop.
func Classify(dev *types.Device, now time.Time, offlineAfter time.Duration) {
	lastSeen := ParseMillis(dev.Info.LastSeen)
	dev.IsOnline = now.UnixMilli()-lastSeen < offlineAfter.Milliseconds()

	if dev.Info.Status != types.DeviceAssigned && !dev.IsOnline {
		dev.Info.Status = types.DeviceOffline
	}
}

// Eligible reports whether a device can be bound to a new parcel
func Eligible(dev types.Device) bool {
	return dev.Info.Status == types.DeviceAvailable && dev.IsOnline
}

// Stats counts the full collection after classification
func Stats(devices []types.Device) types.DeviceStats {
	stats := types.DeviceStats{Total: len(devices)}
	for _, dev := range devices {
		switch dev.Info.Status {
		case types.DeviceAvailable:
			stats.Available++
		case types.DeviceAssigned:
			stats.Assigned++
		case types.DeviceOffline:
			stats.Offline++
		}
	}
	return stats
}

// SortedHistory orders a device's reading history by parsed timestamp
// ascending, discarding entries whose timestamp does not parse to a
// positive value
func SortedHistory(history map[string]types.Reading) []types.Reading {
	out := make([]types.Reading, 0, len(history))
	for _, r := range history {
		if ParseMillis(r.Timestamp) <= 0 {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return ParseMillis(out[i].Timestamp) < ParseMillis(out[j].Timestamp)
	})
	return out
}
