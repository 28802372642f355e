// Package lifecycle is the parcel state machine: which status moves
// are legal, who may make them, and which timestamp each one stamps.
package lifecycle

import (
	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/types"
)

// Actor is who attempts a transition
type Actor struct {
	ID   string
	Role types.Role
}

// edge is one legal lifecycle transition
type edge struct {
	from types.ParcelStatus
	to   types.ParcelStatus

	// timestampField is the info field stamped on success, empty when
	// the transition stamps nothing
	timestampField string

	// transporterOnly edges require the actor to be the parcel's
	// assigned transporter; otherwise warehouse or admin
	transporterOnly bool
}

// The forward chain plus cancellation from every non-terminal state.
// Cancellation edges are handled separately in Validate because the
// source state varies.
var edges = []edge{
	{from: types.StatusReady, to: types.StatusAssigned, timestampField: "assignedAt"},
	{from: types.StatusAssigned, to: types.StatusPickedUp, timestampField: "pickedUpAt", transporterOnly: true},
	{from: types.StatusPickedUp, to: types.StatusInTransit, timestampField: "dispatchedAt", transporterOnly: true},
	{from: types.StatusInTransit, to: types.StatusDelivered, timestampField: "deliveredAt", transporterOnly: true},
}

// TimestampField returns the info field a successful transition to
// target stamps, or "" when it stamps none
func TimestampField(target types.ParcelStatus) string {
	for _, e := range edges {
		if e.to == target {
			return e.timestampField
		}
	}
	return ""
}

// Validate checks that actor may move parcel to target. It returns a
// PreconditionViolation for an illegal move and a PermissionDenied for
// a legal move by the wrong actor, and never mutates anything.
func Validate(parcel types.Parcel, target types.ParcelStatus, actor Actor) error {
	current := parcel.Info.Status

	if target == types.StatusCancelled {
		if current.Terminal() {
			return errdefs.Precondition("cannot cancel a parcel that is already %s", current)
		}
		if actor.Role != types.RoleWarehouse && actor.Role != types.RoleAdmin {
			return errdefs.PermissionDenied("role %q may not cancel parcels", actor.Role)
		}
		return nil
	}

	for _, e := range edges {
		if e.to != target {
			continue
		}
		if e.from != current {
			return errdefs.Precondition("cannot move a %s parcel to %s", current, target)
		}
		if e.transporterOnly {
			if actor.Role != types.RoleTransporter || actor.ID != parcel.Info.TransporterID {
				return errdefs.PermissionDenied("only the assigned transporter may mark a parcel %s", target)
			}
			return nil
		}
		if actor.Role != types.RoleWarehouse && actor.Role != types.RoleAdmin {
			return errdefs.PermissionDenied("role %q may not assign parcels", actor.Role)
		}
		return nil
	}

	return errdefs.Precondition("unknown target status %q", target)
}
