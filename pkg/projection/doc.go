// Package projection maintains live, role-scoped views of the parcel
// collection.
//
// One Projection per signed-in viewer. It holds a standing watch on
// the whole parcels collection; every collection snapshot is filtered
// down by role:
//
//	admin        everything
//	warehouse    parcels whose warehouseId is the viewer
//	transporter  assigned to the viewer, or ready, or the viewer has
//	             expressed interest
//	owner        parcels whose ownerId is the viewer's email
//	anything else  empty
//
// For visible parcels with a bound device, and only when the viewer is
// an admin, a warehouse, or the transporter actually assigned, the
// projection also follows the device's current reading and merges the
// latest one into the parcel. The device watch registry is reconciled
// against the visible set on every recompute:
//
//	collection watch ──> filter by role ──> visible set
//	                                          │ diff
//	                                          v
//	                  device watch registry {parcelID: current sub}
//	                      cancel stale / open new
//
// Enrichment never gates visibility: a parcel shows up as soon as it
// is visible, readings attach whenever they arrive. Stats are computed
// over the same visible set, so the numbers always match the list.
package projection
