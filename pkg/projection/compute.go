package projection

import (
	"sort"

	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// Compute builds one role-scoped snapshot without standing
// subscriptions. Request/response callers use this; live sessions use
// New. Eligible parcels get their device's current reading fetched
// once.
func Compute(st store.Store, viewer Viewer) (Snapshot, error) {
	raw, err := st.Get(store.ParcelsRoot)
	if err != nil {
		return Snapshot{}, err
	}

	p := &Projection{viewer: viewer, logger: log.WithComponent("projection")}

	collection, _ := raw.(map[string]any)
	parcels := make([]types.Parcel, 0, len(collection))
	for id, entry := range collection {
		var parcel types.Parcel
		if err := store.Decode(entry, &parcel); err != nil {
			p.logger.Error().Err(err).Str("parcel_id", id).Msg("Skipping undecodable parcel")
			continue
		}
		parcel.ID = id
		if !p.visibleTo(parcel) {
			continue
		}

		if p.enrichEligible(parcel) {
			rawReading, err := st.Get(store.DeviceCurrentPath(parcel.Info.DeviceID))
			if err == nil && rawReading != nil {
				reading := &types.Reading{}
				if store.Decode(rawReading, reading) == nil {
					parcel.Current = reading
				}
			}
		}
		parcels = append(parcels, parcel)
	}

	sort.Slice(parcels, func(i, j int) bool {
		if parcels[i].Info.CreatedAt != parcels[j].Info.CreatedAt {
			return parcels[i].Info.CreatedAt > parcels[j].Info.CreatedAt
		}
		return parcels[i].ID < parcels[j].ID
	})

	return Snapshot{Parcels: parcels, Stats: Stats(parcels)}, nil
}
