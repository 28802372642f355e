package projection

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/metrics"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// Viewer is the identity a projection is scoped to
type Viewer struct {
	Role  types.Role
	ID    string
	Email string
}

// Snapshot is one consistent view of the parcels a viewer may see,
// with live readings merged in and stats computed over the same set
type Snapshot struct {
	Parcels []types.Parcel    `json:"parcels"`
	Stats   types.ParcelStats `json:"stats"`
}

// outBuffer bounds the snapshot channel; a slow consumer loses
// intermediate snapshots, never stalls the engine
const outBuffer = 8

// Projection maintains a live, role-scoped view of the parcel
// collection. It watches the whole collection, filters it down to what
// the viewer may see, and for eligible parcels follows the bound
// device's current reading, merging the latest one into the parcel.
type Projection struct {
	store  store.Store
	viewer Viewer
	logger zerolog.Logger

	out chan Snapshot

	mu       sync.Mutex
	visible  map[string]types.Parcel
	readings map[string]*types.Reading
	watches  map[string]*deviceWatch
	rootSub  *store.Subscription
	closed   bool
}

// deviceWatch is one standing subscription on a bound device's current
// reading, keyed by parcel id in the registry
type deviceWatch struct {
	deviceID string
	sub      *store.Subscription
}

// New opens a projection for viewer. The first snapshot arrives on
// Snapshots() as soon as the initial collection read lands.
func New(st store.Store, viewer Viewer) (*Projection, error) {
	sub, err := st.Subscribe(store.ParcelsRoot)
	if err != nil {
		return nil, err
	}

	p := &Projection{
		store:    st,
		viewer:   viewer,
		logger:   log.WithComponent("projection").With().Str("role", string(viewer.Role)).Logger(),
		out:      make(chan Snapshot, outBuffer),
		visible:  make(map[string]types.Parcel),
		readings: make(map[string]*types.Reading),
		watches:  make(map[string]*deviceWatch),
		rootSub:  sub,
	}

	go p.run()
	return p, nil
}

// Snapshots delivers a fresh Snapshot after every relevant change. The
// channel closes when the projection is closed.
func (p *Projection) Snapshots() <-chan Snapshot {
	return p.out
}

// Close tears down the collection watch and every device watch
func (p *Projection) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, w := range p.watches {
		w.sub.Cancel()
		delete(p.watches, id)
	}
	p.mu.Unlock()

	p.rootSub.Cancel()
}

func (p *Projection) run() {
	for snap := range p.rootSub.C() {
		p.apply(snap.Value)
	}

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for id, w := range p.watches {
			w.sub.Cancel()
			delete(p.watches, id)
		}
	}
	close(p.out)
	p.mu.Unlock()
}

// apply recomputes the visible set from a full collection snapshot,
// reconciles the device watch registry against it, and emits
func (p *Projection) apply(value any) {
	visible := make(map[string]types.Parcel)

	collection, ok := value.(map[string]any)
	if value != nil && !ok {
		p.logger.Error().Msg("Parcel collection snapshot has unexpected shape")
	}
	for id, raw := range collection {
		var parcel types.Parcel
		if err := store.Decode(raw, &parcel); err != nil {
			p.logger.Error().Err(err).Str("parcel_id", id).Msg("Skipping undecodable parcel")
			continue
		}
		parcel.ID = id
		if p.visibleTo(parcel) {
			visible[id] = parcel
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.visible = visible
	p.syncDeviceWatches()
	p.emitLocked()
}

// visibleTo applies the role visibility rules
func (p *Projection) visibleTo(parcel types.Parcel) bool {
	switch p.viewer.Role {
	case types.RoleAdmin:
		return true
	case types.RoleWarehouse:
		return parcel.Info.WarehouseID == p.viewer.ID
	case types.RoleTransporter:
		if parcel.Info.TransporterID == p.viewer.ID {
			return true
		}
		if parcel.Info.Status == types.StatusReady {
			return true
		}
		_, interested := parcel.InterestedAgents[p.viewer.ID]
		return interested
	case types.RoleOwner:
		return parcel.Info.OwnerID == p.viewer.Email
	default:
		return false
	}
}

// enrichEligible reports whether this viewer gets live readings for
// this parcel. Owners and merely-interested transporters see the
// parcel but not the device feed.
func (p *Projection) enrichEligible(parcel types.Parcel) bool {
	if parcel.Info.DeviceID == "" {
		return false
	}
	switch p.viewer.Role {
	case types.RoleAdmin, types.RoleWarehouse:
		return true
	case types.RoleTransporter:
		return parcel.Info.TransporterID == p.viewer.ID
	default:
		return false
	}
}

// syncDeviceWatches reconciles the watch registry with the current
// visible set: cancel watches for parcels that left the set or changed
// device, open watches for new eligible ones. Caller holds p.mu.
func (p *Projection) syncDeviceWatches() {
	for id, w := range p.watches {
		parcel, exists := p.visible[id]
		if exists && p.enrichEligible(parcel) && parcel.Info.DeviceID == w.deviceID {
			continue
		}
		w.sub.Cancel()
		delete(p.watches, id)
		delete(p.readings, id)
	}

	for id, parcel := range p.visible {
		if _, exists := p.watches[id]; exists {
			continue
		}
		if !p.enrichEligible(parcel) {
			continue
		}
		if err := p.startDeviceWatch(id, parcel.Info.DeviceID); err != nil {
			p.logger.Error().Err(err).Str("parcel_id", id).Str("device_id", parcel.Info.DeviceID).
				Msg("Failed to watch device readings")
		}
	}
}

// startDeviceWatch opens one current-reading subscription. Caller
// holds p.mu.
func (p *Projection) startDeviceWatch(parcelID, deviceID string) error {
	sub, err := p.store.Subscribe(store.DeviceCurrentPath(deviceID))
	if err != nil {
		return err
	}
	p.watches[parcelID] = &deviceWatch{deviceID: deviceID, sub: sub}

	go func() {
		for snap := range sub.C() {
			p.applyReading(parcelID, snap.Value)
		}
	}()
	return nil
}

func (p *Projection) applyReading(parcelID string, value any) {
	var reading *types.Reading
	if value != nil {
		reading = &types.Reading{}
		if err := store.Decode(value, reading); err != nil {
			p.logger.Error().Err(err).Str("parcel_id", parcelID).Msg("Skipping undecodable reading")
			return
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, watched := p.watches[parcelID]; !watched {
		return
	}
	if reading == nil {
		delete(p.readings, parcelID)
	} else {
		p.readings[parcelID] = reading
	}
	p.emitLocked()
}

// emitLocked composes and sends a snapshot. Caller holds p.mu.
func (p *Projection) emitLocked() {
	parcels := make([]types.Parcel, 0, len(p.visible))
	for id, parcel := range p.visible {
		if reading, ok := p.readings[id]; ok {
			r := *reading
			parcel.Current = &r
		}
		parcels = append(parcels, parcel)
	}
	sort.Slice(parcels, func(i, j int) bool {
		if parcels[i].Info.CreatedAt != parcels[j].Info.CreatedAt {
			return parcels[i].Info.CreatedAt > parcels[j].Info.CreatedAt
		}
		return parcels[i].ID < parcels[j].ID
	})

	select {
	case p.out <- Snapshot{Parcels: parcels, Stats: Stats(parcels)}:
	default:
		metrics.SnapshotsDropped.Inc()
	}
}

// Stats buckets a parcel list by status. Picked-up parcels count as in
// transit.
func Stats(parcels []types.Parcel) types.ParcelStats {
	stats := types.ParcelStats{Total: len(parcels)}
	for _, parcel := range parcels {
		switch parcel.Info.Status {
		case types.StatusReady:
			stats.Ready++
		case types.StatusAssigned:
			stats.Assigned++
		case types.StatusInTransit, types.StatusPickedUp:
			stats.InTransit++
		case types.StatusDelivered:
			stats.Delivered++
		case types.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}
