package device

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func waitSnapshot(t *testing.T, m *Monitor, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, open := <-m.Snapshots():
			if !open {
				t.Fatal("monitor closed while waiting for snapshot")
			}
			if ok(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching snapshot")
		}
	}
}

func TestMonitorClassifiesFleet(t *testing.T) {
	st := newTestStore(t)
	fresh := strconv.FormatInt(time.Now().UnixMilli(), 10)
	stale := strconv.FormatInt(time.Now().UnixMilli()-300_000, 10)

	require.NoError(t, st.Put(store.DeviceInfoPath("dev-a"), types.DeviceInfo{Status: types.DeviceAvailable, LastSeen: fresh}))
	require.NoError(t, st.Put(store.DeviceInfoPath("dev-b"), types.DeviceInfo{Status: types.DeviceAvailable, LastSeen: stale}))
	require.NoError(t, st.Put(store.DeviceInfoPath("dev-c"), types.DeviceInfo{Status: types.DeviceAssigned, LastSeen: stale, AssignedParcelID: "p-1"}))

	m, err := NewMonitor(st, types.RoleAdmin, Options{})
	require.NoError(t, err)
	defer m.Close()

	snap := waitSnapshot(t, m, func(s Snapshot) bool { return len(s.Devices) == 3 })
	assert.Equal(t, types.DeviceStats{Total: 3, Available: 1, Assigned: 1, Offline: 1}, snap.Stats)

	byID := make(map[string]types.Device)
	for _, dev := range snap.Devices {
		byID[dev.ID] = dev
	}
	assert.True(t, byID["dev-a"].IsOnline)
	assert.Equal(t, types.DeviceOffline, byID["dev-b"].Info.Status)
	assert.Equal(t, types.DeviceAssigned, byID["dev-c"].Info.Status)
	assert.False(t, byID["dev-c"].IsOnline)
}

func TestMonitorTracksChanges(t *testing.T) {
	st := newTestStore(t)
	m, err := NewMonitor(st, types.RoleWarehouse, Options{})
	require.NoError(t, err)
	defer m.Close()

	waitSnapshot(t, m, func(s Snapshot) bool { return len(s.Devices) == 0 })

	fresh := strconv.FormatInt(time.Now().UnixMilli(), 10)
	require.NoError(t, st.Put(store.DeviceInfoPath("dev-a"), types.DeviceInfo{Status: types.DeviceAvailable, LastSeen: fresh}))
	snap := waitSnapshot(t, m, func(s Snapshot) bool { return len(s.Devices) == 1 })
	assert.True(t, Eligible(snap.Devices[0]))
}

func TestMonitorTransporterEmptyView(t *testing.T) {
	st := newTestStore(t)
	fresh := strconv.FormatInt(time.Now().UnixMilli(), 10)
	require.NoError(t, st.Put(store.DeviceInfoPath("dev-a"), types.DeviceInfo{Status: types.DeviceAvailable, LastSeen: fresh}))

	m, err := NewMonitor(st, types.RoleTransporter, Options{})
	require.NoError(t, err)
	defer m.Close()

	snap := <-m.Snapshots()
	assert.Empty(t, snap.Devices)
	assert.Equal(t, types.DeviceStats{}, snap.Stats)
}

func TestMonitorDeniedRole(t *testing.T) {
	st := newTestStore(t)

	_, err := NewMonitor(st, types.Role("guest"), Options{})
	assert.True(t, errors.Is(err, errdefs.ErrPermissionDenied))

	m, err := NewMonitor(st, types.Role("guest"), Options{Debug: true})
	require.NoError(t, err)
	defer m.Close()

	snap := <-m.Snapshots()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "debug-placeholder", snap.Devices[0].ID)
}
