package actions

import (
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/notify"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

var (
	warehouse   = Actor{ID: "wh-1", Email: "wh@example.com", Role: types.RoleWarehouse}
	transporter = Actor{ID: "tr-1", Email: "tr1@example.com", Name: "Tracy", Role: types.RoleTransporter}
	admin       = Actor{ID: "adm-1", Email: "admin@example.com", Role: types.RoleAdmin}
	owner       = Actor{ID: "own-1", Email: "owner@example.com", Role: types.RoleOwner}
)

func newFixture(t *testing.T) (store.Store, *Service) {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, NewService(st, 0)
}

func seedOnlineDevice(t *testing.T, st store.Store, id string) {
	t.Helper()
	require.NoError(t, st.Put(store.DeviceInfoPath(id), types.DeviceInfo{
		Status:   types.DeviceAvailable,
		LastSeen: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}))
	require.NoError(t, st.Put(store.DeviceHistoryPath(id), map[string]types.Reading{
		"old": {Timestamp: "1", Temperature: 99},
	}))
	require.NoError(t, st.Put(store.DeviceAlertsPath(id), map[string]types.Alert{
		"old": {Type: "temperature", Message: "stale"},
	}))
}

func createParcel(t *testing.T, svc *Service, deviceID string) string {
	t.Helper()
	id, err := svc.CreateParcel(warehouse, CreateParcelForm{
		DeviceID:           deviceID,
		ProductDescription: "Vaccine cooler",
		OwnerEmail:         owner.Email,
	})
	require.NoError(t, err)
	return id
}

func getParcel(t *testing.T, st store.Store, id string) types.Parcel {
	t.Helper()
	raw, err := st.Get(store.ParcelPath(id))
	require.NoError(t, err)
	require.NotNil(t, raw)
	var parcel types.Parcel
	require.NoError(t, store.Decode(raw, &parcel))
	parcel.ID = id
	return parcel
}

func getDevice(t *testing.T, st store.Store, id string) types.Device {
	t.Helper()
	raw, err := st.Get(store.DevicePath(id))
	require.NoError(t, err)
	require.NotNil(t, raw)
	var dev types.Device
	require.NoError(t, store.Decode(raw, &dev))
	return dev
}

func TestCreateParcelBindsAndResetsDevice(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")

	id := createParcel(t, svc, "D1")
	assert.True(t, strings.HasPrefix(id, "PKG"))
	assert.Len(t, id, len("PKG")+8)

	parcel := getParcel(t, st, id)
	assert.Equal(t, types.StatusReady, parcel.Info.Status)
	assert.Equal(t, "D1", parcel.Info.DeviceID)
	assert.Equal(t, warehouse.ID, parcel.Info.WarehouseID)
	assert.Equal(t, owner.Email, parcel.Info.OwnerID)
	assert.NotZero(t, parcel.Info.CreatedAt)
	assert.Equal(t, types.DefaultThresholds(), parcel.Info.Thresholds)
	assert.Empty(t, parcel.InterestedAgents)

	dev := getDevice(t, st, "D1")
	assert.Equal(t, types.DeviceAssigned, dev.Info.Status)
	assert.Equal(t, id, dev.Info.AssignedParcelID)
	require.NotNil(t, dev.Info.Thresholds)
	assert.Equal(t, parcel.Info.Thresholds, *dev.Info.Thresholds)
	assert.Empty(t, dev.History, "old telemetry cleared")
	assert.Empty(t, dev.Alerts, "old alerts cleared")
	require.NotNil(t, dev.Current)
	assert.Equal(t, "Initializing", dev.Current.Orientation)
	assert.Zero(t, dev.Current.Temperature)

	feed, err := notify.Load(st, owner.Email, 0)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	assert.Equal(t, types.NotifParcelCreated, feed.Notifications[0].Type)
	assert.Equal(t, id, feed.Notifications[0].ParcelID)
}

func TestCreateParcelRequiresEligibleDevice(t *testing.T) {
	st, svc := newFixture(t)

	// offline device
	require.NoError(t, st.Put(store.DeviceInfoPath("D-stale"), types.DeviceInfo{
		Status:   types.DeviceAvailable,
		LastSeen: strconv.FormatInt(time.Now().UnixMilli()-300_000, 10),
	}))
	_, err := svc.CreateParcel(warehouse, CreateParcelForm{DeviceID: "D-stale", OwnerEmail: "o@e.com"})
	assert.True(t, errors.Is(err, errdefs.ErrPrecondition))

	// already assigned device
	require.NoError(t, st.Put(store.DeviceInfoPath("D-busy"), types.DeviceInfo{
		Status:           types.DeviceAssigned,
		AssignedParcelID: "PKG00000001",
		LastSeen:         strconv.FormatInt(time.Now().UnixMilli(), 10),
	}))
	_, err = svc.CreateParcel(warehouse, CreateParcelForm{DeviceID: "D-busy", OwnerEmail: "o@e.com"})
	assert.True(t, errors.Is(err, errdefs.ErrPrecondition))

	// unknown device
	_, err = svc.CreateParcel(warehouse, CreateParcelForm{DeviceID: "D-none", OwnerEmail: "o@e.com"})
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	// wrong role
	seedOnlineDevice(t, st, "D1")
	_, err = svc.CreateParcel(transporter, CreateParcelForm{DeviceID: "D1", OwnerEmail: "o@e.com"})
	assert.True(t, errors.Is(err, errdefs.ErrPermissionDenied))
}

func TestExpressInterest(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")

	require.NoError(t, svc.ExpressInterest(transporter, id, "heading that way", "2h"))

	parcel := getParcel(t, st, id)
	agent, ok := parcel.InterestedAgents[transporter.ID]
	require.True(t, ok)
	assert.Equal(t, "heading that way", agent.Note)
	assert.Equal(t, "2h", agent.ETA)
	assert.Equal(t, transporter.Email, agent.AgentEmail)

	feed, err := notify.Load(st, warehouse.ID, 0)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	assert.Equal(t, types.NotifAgentInterest, feed.Notifications[0].Type)
	assert.Equal(t, transporter.ID, feed.Notifications[0].AgentID)
}

func TestExpressInterestOnlyWhileReady(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")
	require.NoError(t, svc.AssignTransporter(warehouse, id, transporter.ID))

	err := svc.ExpressInterest(Actor{ID: "tr-2", Role: types.RoleTransporter}, id, "", "")
	assert.True(t, errors.Is(err, errdefs.ErrPrecondition))

	err = svc.ExpressInterest(warehouse, id, "", "")
	assert.True(t, errors.Is(err, errdefs.ErrPermissionDenied))
}

func TestAssignTransporter(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")
	require.NoError(t, svc.ExpressInterest(transporter, id, "pick me", ""))

	require.NoError(t, svc.AssignTransporter(warehouse, id, transporter.ID))

	parcel := getParcel(t, st, id)
	assert.Equal(t, types.StatusAssigned, parcel.Info.Status)
	assert.Equal(t, transporter.ID, parcel.Info.TransporterID)
	assert.NotZero(t, parcel.Info.AssignedAt)
	assert.Empty(t, parcel.InterestedAgents, "interest list cleared on assignment")

	feed, err := notify.Load(st, transporter.ID, 0)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	assert.Equal(t, types.NotifAssignment, feed.Notifications[0].Type)
	assert.Equal(t, id, feed.Notifications[0].ParcelID)
}

func TestUpdateStatusWalksLifecycle(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")
	require.NoError(t, svc.AssignTransporter(warehouse, id, transporter.ID))

	require.NoError(t, svc.UpdateStatus(transporter, id, types.StatusPickedUp))
	require.NoError(t, svc.UpdateStatus(transporter, id, types.StatusInTransit))
	require.NoError(t, svc.UpdateStatus(transporter, id, types.StatusDelivered))

	parcel := getParcel(t, st, id)
	assert.Equal(t, types.StatusDelivered, parcel.Info.Status)
	assert.NotZero(t, parcel.Info.PickedUpAt)
	assert.NotZero(t, parcel.Info.DispatchedAt)
	assert.NotZero(t, parcel.Info.DeliveredAt)

	// owner heard about creation plus all three moves
	feed, err := notify.Load(st, owner.Email, 0)
	require.NoError(t, err)
	assert.Len(t, feed.Notifications, 4)
}

func TestUpdateStatusRejectedWithoutMutation(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")
	before := getParcel(t, st, id)

	err := svc.UpdateStatus(transporter, id, types.StatusInTransit)
	assert.True(t, errors.Is(err, errdefs.ErrPrecondition))

	after := getParcel(t, st, id)
	assert.Equal(t, before.Info, after.Info, "rejected transition must not touch the record")
}

func TestCancelParcel(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")
	require.NoError(t, svc.AssignTransporter(warehouse, id, transporter.ID))

	require.NoError(t, svc.CancelParcel(admin, id))
	assert.Equal(t, types.StatusCancelled, getParcel(t, st, id).Info.Status)

	err := svc.CancelParcel(admin, id)
	assert.True(t, errors.Is(err, errdefs.ErrPrecondition), "terminal parcels cannot be cancelled again")
}

func TestDeleteParcelReleasesDevice(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")

	require.NoError(t, svc.DeleteParcel(warehouse, id))

	raw, err := st.Get(store.ParcelPath(id))
	require.NoError(t, err)
	assert.Nil(t, raw)

	dev := getDevice(t, st, "D1")
	assert.Equal(t, types.DeviceAvailable, dev.Info.Status)
	assert.Empty(t, dev.Info.AssignedParcelID)

	err = svc.DeleteParcel(owner, id)
	assert.True(t, errors.Is(err, errdefs.ErrPermissionDenied))
}

func TestCounts(t *testing.T) {
	st, svc := newFixture(t)
	seedOnlineDevice(t, st, "D1")
	id := createParcel(t, svc, "D1")
	require.NoError(t, svc.AssignTransporter(warehouse, id, transporter.ID))
	require.NoError(t, st.Put(store.ParcelPath("PKG00000099"), types.Parcel{
		Info: types.ParcelInfo{ParcelID: "PKG00000099", Status: types.StatusDelivered},
	}))

	require.NoError(t, st.Put(store.ProfilePath("u-wh"), types.UserProfile{
		Email: "wh@example.com", Role: types.RoleWarehouse, Verified: true,
	}))
	require.NoError(t, st.Put(store.ProfilePath("u-tr"), types.UserProfile{
		Email: "tr@example.com", Role: types.RoleTransporter,
	}))
	require.NoError(t, st.Put(store.ProfilePath("u-bad"), types.UserProfile{
		Email: "bad@example.com", Role: types.RoleOwner, Banned: true,
	}))

	counts, err := svc.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"assigned": 1, "delivered": 1}, counts.ParcelsByStatus)
	assert.Equal(t, map[string]int{"warehouse": 1, "transporter": 1, "owner": 1}, counts.UsersByRole)
	assert.Equal(t, 1, counts.UsersPending, "banned accounts are not pending")
}

func TestUpdateSettings(t *testing.T) {
	st, svc := newFixture(t)
	require.NoError(t, st.Put(store.ProfilePath(transporter.ID), types.UserProfile{
		Email: transporter.Email, Role: types.RoleTransporter, Verified: true, CreatedAt: 1000,
	}))

	require.NoError(t, svc.UpdateSettings(transporter, SettingsForm{
		Name:     "Tracy Hauler",
		Phone:    "+31 6 1234 5678",
		PhotoURL: "https://cdn.example.com/tracy.png",
	}))

	raw, err := st.Get(store.ProfilePath(transporter.ID))
	require.NoError(t, err)
	var profile types.UserProfile
	require.NoError(t, store.Decode(raw, &profile))
	assert.Equal(t, "Tracy Hauler", profile.Name)
	assert.Equal(t, "+31 6 1234 5678", profile.Phone)
	assert.Equal(t, "https://cdn.example.com/tracy.png", profile.PhotoURL)

	// display fields only; the accountable state is untouched
	assert.Equal(t, types.RoleTransporter, profile.Role)
	assert.True(t, profile.Verified)
	assert.False(t, profile.Banned)
	assert.Equal(t, int64(1000), profile.CreatedAt)
}

func TestApproveAndRejectUser(t *testing.T) {
	st, svc := newFixture(t)
	require.NoError(t, st.Put(store.ProfilePath("uid-1"), types.UserProfile{
		Email: "new@example.com", Role: types.RoleTransporter, CreatedAt: 1000,
	}))

	require.NoError(t, svc.ApproveUser(admin, "uid-1"))
	raw, err := st.Get(store.ProfilePath("uid-1"))
	require.NoError(t, err)
	var profile types.UserProfile
	require.NoError(t, store.Decode(raw, &profile))
	assert.True(t, profile.Verified)
	assert.Equal(t, int64(1000), profile.CreatedAt, "approval only flips the flag")

	require.NoError(t, svc.RejectUser(admin, "uid-1"))
	raw, err = st.Get(store.ProfilePath("uid-1"))
	require.NoError(t, err)
	require.NoError(t, store.Decode(raw, &profile))
	assert.False(t, profile.Verified)
	assert.True(t, profile.Banned)

	assert.True(t, errors.Is(svc.ApproveUser(warehouse, "uid-1"), errdefs.ErrPermissionDenied))
	assert.True(t, errors.Is(svc.RejectUser(owner, "uid-1"), errdefs.ErrPermissionDenied))
}
