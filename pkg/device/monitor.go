package device

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/metrics"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// reclassifyInterval is how often the monitor re-derives liveness
// without a store change. Devices go offline by falling silent, so
// waiting for a write would never notice them.
const reclassifyInterval = 10 * time.Second

// Snapshot is one classified view of the device fleet
type Snapshot struct {
	Devices []types.Device    `json:"devices"`
	Stats   types.DeviceStats `json:"stats"`
}

// Options tunes a Monitor
type Options struct {
	// OfflineAfter overrides the default silence window when positive
	OfflineAfter time.Duration

	// Debug substitutes a synthetic placeholder device when the viewer
	// role is denied the fleet, so a development frontend still has
	// something to render
	Debug bool
}

// Monitor follows the device collection and emits classified
// snapshots. Only admins, warehouses and owners may open one;
// transporters work from the parcel list alone and get a permanently
// empty view.
type Monitor struct {
	store        store.Store
	logger       zerolog.Logger
	offlineAfter time.Duration

	out  chan Snapshot
	stop chan struct{}

	mu      sync.Mutex
	devices map[string]types.Device
	sub     *store.Subscription
	closed  bool
	once    sync.Once
}

// NewMonitor opens a classified fleet watch for the given role.
// Transporters get an empty static view. Unknown roles are denied,
// except in debug mode where a placeholder fleet is substituted.
func NewMonitor(st store.Store, role types.Role, opts Options) (*Monitor, error) {
	offlineAfter := opts.OfflineAfter
	if offlineAfter <= 0 {
		offlineAfter = OfflineAfter
	}

	m := &Monitor{
		store:        st,
		logger:       log.WithComponent("device-monitor").With().Str("role", string(role)).Logger(),
		offlineAfter: offlineAfter,
		out:          make(chan Snapshot, 8),
		stop:         make(chan struct{}),
		devices:      make(map[string]types.Device),
	}

	switch role {
	case types.RoleAdmin, types.RoleWarehouse, types.RoleOwner:
	case types.RoleTransporter:
		// static empty view; no subscription, one snapshot
		m.out <- Snapshot{Devices: []types.Device{}}
		return m, nil
	default:
		if !opts.Debug {
			return nil, errdefs.PermissionDenied("role %q may not monitor devices", role)
		}
		m.logger.Warn().Msg("Substituting placeholder device for denied role")
		m.devices["debug-placeholder"] = placeholderDevice()
		m.emit()
		return m, nil
	}

	sub, err := st.Subscribe(store.DevicesRoot)
	if err != nil {
		return nil, err
	}
	m.sub = sub

	go m.run()
	return m, nil
}

// Snapshots delivers a classified fleet snapshot after every change
// and on a liveness re-check interval
func (m *Monitor) Snapshots() <-chan Snapshot {
	return m.out
}

// Close stops the watch and closes the snapshot channel
func (m *Monitor) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.stop)
		if m.sub != nil {
			m.sub.Cancel()
		} else {
			close(m.out)
		}
	})
}

func (m *Monitor) run() {
	ticker := time.NewTicker(reclassifyInterval)
	defer ticker.Stop()

	stop := m.stop
	for {
		select {
		case snap, ok := <-m.sub.C():
			if !ok {
				close(m.out)
				return
			}
			m.apply(snap.Value)
		case <-ticker.C:
			m.mu.Lock()
			if !m.closed {
				m.emit()
			}
			m.mu.Unlock()
		case <-stop:
			// keep draining until the cancelled subscription closes
			stop = nil
		}
	}
}

func (m *Monitor) apply(value any) {
	devices := make(map[string]types.Device)
	collection, _ := value.(map[string]any)
	for id, raw := range collection {
		var dev types.Device
		if err := store.Decode(raw, &dev); err != nil {
			m.logger.Error().Err(err).Str("device_id", id).Msg("Skipping undecodable device")
			continue
		}
		dev.ID = id
		devices[id] = dev
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.devices = devices
	m.emit()
}

// emit classifies against the current clock and sends. Caller holds
// m.mu or is the constructor.
func (m *Monitor) emit() {
	now := time.Now()
	out := make([]types.Device, 0, len(m.devices))
	counts := make(map[types.DeviceStatus]int)

	for _, dev := range m.devices {
		Classify(&dev, now, m.offlineAfter)
		counts[dev.Info.Status]++
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	for _, status := range []types.DeviceStatus{types.DeviceAvailable, types.DeviceAssigned, types.DeviceOffline} {
		metrics.DevicesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	select {
	case m.out <- Snapshot{Devices: out, Stats: Stats(out)}:
	default:
		metrics.SnapshotsDropped.Inc()
	}
}

// List builds one classified fleet snapshot without a standing watch,
// under the same role gate as NewMonitor
func List(st store.Store, role types.Role, opts Options) (Snapshot, error) {
	offlineAfter := opts.OfflineAfter
	if offlineAfter <= 0 {
		offlineAfter = OfflineAfter
	}

	switch role {
	case types.RoleAdmin, types.RoleWarehouse, types.RoleOwner:
	case types.RoleTransporter:
		return Snapshot{Devices: []types.Device{}}, nil
	default:
		if !opts.Debug {
			return Snapshot{}, errdefs.PermissionDenied("role %q may not list devices", role)
		}
		placeholder := placeholderDevice()
		Classify(&placeholder, time.Now(), offlineAfter)
		return Snapshot{
			Devices: []types.Device{placeholder},
			Stats:   Stats([]types.Device{placeholder}),
		}, nil
	}

	raw, err := st.Get(store.DevicesRoot)
	if err != nil {
		return Snapshot{}, err
	}

	now := time.Now()
	logger := log.WithComponent("device-monitor")
	collection, _ := raw.(map[string]any)
	devices := make([]types.Device, 0, len(collection))
	for id, entry := range collection {
		var dev types.Device
		if err := store.Decode(entry, &dev); err != nil {
			logger.Error().Err(err).Str("device_id", id).Msg("Skipping undecodable device")
			continue
		}
		dev.ID = id
		Classify(&dev, now, offlineAfter)
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	return Snapshot{Devices: devices, Stats: Stats(devices)}, nil
}

// placeholderDevice is the debug stand-in rendered when the real fleet
// is denied
func placeholderDevice() types.Device {
	return types.Device{
		ID: "debug-placeholder",
		Info: types.DeviceInfo{
			DeviceName: "Placeholder Tracker",
			Status:     types.DeviceAvailable,
			LastSeen:   "0",
		},
	}
}
