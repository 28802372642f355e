package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/types"
)

func parcelIn(status types.ParcelStatus) types.Parcel {
	return types.Parcel{Info: types.ParcelInfo{
		Status:        status,
		TransporterID: "tr-1",
	}}
}

func TestValidateForwardChain(t *testing.T) {
	warehouse := Actor{ID: "wh-1", Role: types.RoleWarehouse}
	transporter := Actor{ID: "tr-1", Role: types.RoleTransporter}

	tests := []struct {
		name    string
		from    types.ParcelStatus
		to      types.ParcelStatus
		actor   Actor
		wantErr error
	}{
		{"assign from ready", types.StatusReady, types.StatusAssigned, warehouse, nil},
		{"pick up assigned", types.StatusAssigned, types.StatusPickedUp, transporter, nil},
		{"dispatch picked up", types.StatusPickedUp, types.StatusInTransit, transporter, nil},
		{"deliver in transit", types.StatusInTransit, types.StatusDelivered, transporter, nil},

		{"skip a state", types.StatusReady, types.StatusInTransit, transporter, errdefs.ErrPrecondition},
		{"move backwards", types.StatusDelivered, types.StatusInTransit, transporter, errdefs.ErrPrecondition},
		{"repeat current state", types.StatusAssigned, types.StatusAssigned, warehouse, errdefs.ErrPrecondition},
		{"unknown target", types.StatusReady, types.ParcelStatus("lost"), warehouse, errdefs.ErrPrecondition},

		{"transporter cannot assign", types.StatusReady, types.StatusAssigned, transporter, errdefs.ErrPermissionDenied},
		{"warehouse cannot pick up", types.StatusAssigned, types.StatusPickedUp, warehouse, errdefs.ErrPermissionDenied},
		{
			"wrong transporter cannot pick up",
			types.StatusAssigned, types.StatusPickedUp,
			Actor{ID: "tr-2", Role: types.RoleTransporter},
			errdefs.ErrPermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(parcelIn(tt.from), tt.to, tt.actor)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestValidateCancellation(t *testing.T) {
	admin := Actor{ID: "adm-1", Role: types.RoleAdmin}

	for _, status := range []types.ParcelStatus{
		types.StatusReady, types.StatusAssigned, types.StatusPickedUp, types.StatusInTransit,
	} {
		assert.NoError(t, Validate(parcelIn(status), types.StatusCancelled, admin), "from %s", status)
	}

	for _, status := range []types.ParcelStatus{types.StatusDelivered, types.StatusCancelled} {
		err := Validate(parcelIn(status), types.StatusCancelled, admin)
		assert.True(t, errors.Is(err, errdefs.ErrPrecondition), "from %s", status)
	}

	err := Validate(parcelIn(types.StatusReady), types.StatusCancelled, Actor{ID: "tr-1", Role: types.RoleTransporter})
	assert.True(t, errors.Is(err, errdefs.ErrPermissionDenied))
}

func TestTimestampField(t *testing.T) {
	assert.Equal(t, "assignedAt", TimestampField(types.StatusAssigned))
	assert.Equal(t, "pickedUpAt", TimestampField(types.StatusPickedUp))
	assert.Equal(t, "dispatchedAt", TimestampField(types.StatusInTransit))
	assert.Equal(t, "deliveredAt", TimestampField(types.StatusDelivered))
	assert.Equal(t, "", TimestampField(types.StatusCancelled))
}
