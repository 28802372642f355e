package actions

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/traceon/traceond/pkg/device"
	"github.com/traceon/traceond/pkg/errdefs"
	"github.com/traceon/traceond/pkg/lifecycle"
	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/metrics"
	"github.com/traceon/traceond/pkg/notify"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

// Actor is the authenticated identity performing an action
type Actor struct {
	ID    string
	Email string
	Name  string
	Role  types.Role
}

// Service executes the mutating operations. Every method validates
// before its first write; the read side catches up through its own
// subscriptions, never through return values.
type Service struct {
	store        store.Store
	logger       zerolog.Logger
	offlineAfter time.Duration
	now          func() time.Time
}

// NewService creates an action service. offlineAfter bounds device
// eligibility checks; zero means the default window.
func NewService(st store.Store, offlineAfter time.Duration) *Service {
	if offlineAfter <= 0 {
		offlineAfter = device.OfflineAfter
	}
	return &Service{
		store:        st,
		logger:       log.WithComponent("actions"),
		offlineAfter: offlineAfter,
		now:          time.Now,
	}
}

func (s *Service) instrument(action string, fn func() error) error {
	timer := metrics.NewTimer()
	err := fn()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ActionsTotal.WithLabelValues(action, outcome).Inc()
	timer.ObserveDuration(metrics.ActionDuration.WithLabelValues(action))
	return err
}

// CreateParcelForm is the warehouse intake form
type CreateParcelForm struct {
	DeviceID            string
	ProductDescription  string
	Category            string
	Weight              float64
	Dimensions          types.Dimensions
	PickupLocation      string
	Destination         string
	OwnerName           string
	OwnerEmail          string
	OwnerPhone          string
	Priority            types.Priority
	SpecialInstructions string
	Thresholds          *types.Thresholds
}

// CreateParcel registers a new shipment and binds its tracker. The
// device must be available and currently online; the parcel starts
// ready, and the device record is reset so stale telemetry from a
// previous shipment cannot leak into this one.
func (s *Service) CreateParcel(actor Actor, form CreateParcelForm) (string, error) {
	var parcelID string
	err := s.instrument("create_parcel", func() error {
		if actor.Role != types.RoleWarehouse && actor.Role != types.RoleAdmin {
			return errdefs.PermissionDenied("role %q may not create parcels", actor.Role)
		}
		if form.DeviceID == "" {
			return errdefs.Precondition("a tracker device is required")
		}
		if form.OwnerEmail == "" {
			return errdefs.Precondition("an owner email is required")
		}

		dev, err := s.readDevice(form.DeviceID)
		if err != nil {
			return err
		}
		device.Classify(&dev, s.now(), s.offlineAfter)
		if !device.Eligible(dev) {
			return errdefs.Precondition("device %s is not available and online", form.DeviceID)
		}

		now := s.now().UnixMilli()
		millis := strconv.FormatInt(now, 10)
		parcelID = "PKG" + millis[len(millis)-8:]

		thresholds := types.DefaultThresholds()
		if form.Thresholds != nil {
			thresholds = *form.Thresholds
		}
		priority := form.Priority
		if priority == "" {
			priority = types.PriorityNormal
		}

		parcel := types.Parcel{
			Info: types.ParcelInfo{
				ParcelID:            parcelID,
				DeviceID:            form.DeviceID,
				ProductDescription:  form.ProductDescription,
				Category:            form.Category,
				Weight:              form.Weight,
				Dimensions:          form.Dimensions,
				PickupLocation:      form.PickupLocation,
				Destination:         form.Destination,
				OwnerName:           form.OwnerName,
				OwnerEmail:          form.OwnerEmail,
				OwnerPhone:          form.OwnerPhone,
				WarehouseID:         actor.ID,
				OwnerID:             form.OwnerEmail,
				Status:              types.StatusReady,
				Priority:            priority,
				SpecialInstructions: form.SpecialInstructions,
				CreatedAt:           now,
				Thresholds:          thresholds,
			},
		}
		if err := s.store.Put(store.ParcelPath(parcelID), parcel); err != nil {
			return err
		}

		if err := s.rebindDevice(form.DeviceID, parcelID, thresholds); err != nil {
			return err
		}

		s.notifyOrLog(form.OwnerEmail, types.Notification{
			Type:     types.NotifParcelCreated,
			Message:  fmt.Sprintf("Parcel %s has been registered and is ready for pickup", parcelID),
			ParcelID: parcelID,
		})

		plog := log.WithParcelID(parcelID)
		plog.Info().
			Str("device_id", form.DeviceID).
			Str("warehouse_id", actor.ID).
			Msg("Parcel created")
		return nil
	})
	return parcelID, err
}

// rebindDevice points a tracker at a fresh parcel: assignment stamped,
// thresholds mirrored for local evaluation, telemetry from any earlier
// shipment cleared
func (s *Service) rebindDevice(deviceID, parcelID string, thresholds types.Thresholds) error {
	if err := s.store.Update(store.DeviceInfoPath(deviceID), map[string]any{
		"status":           string(types.DeviceAssigned),
		"assignedParcelId": parcelID,
		"thresholds":       thresholds,
	}); err != nil {
		return err
	}

	for _, path := range []string{
		store.DeviceAlertsPath(deviceID),
		store.DeviceHistoryPath(deviceID),
	} {
		if err := s.store.Delete(path); err != nil {
			return err
		}
	}

	return s.store.Put(store.DeviceCurrentPath(deviceID), types.Reading{
		Timestamp:   strconv.FormatInt(s.now().UnixMilli(), 10),
		Orientation: "Initializing",
	})
}

// ExpressInterest records a transporter's offer to carry a ready
// parcel and tells the warehouse about it
func (s *Service) ExpressInterest(actor Actor, parcelID, note, eta string) error {
	return s.instrument("express_interest", func() error {
		if actor.Role != types.RoleTransporter {
			return errdefs.PermissionDenied("role %q may not express interest", actor.Role)
		}

		parcel, err := s.readParcel(parcelID)
		if err != nil {
			return err
		}
		if parcel.Info.Status != types.StatusReady {
			return errdefs.Precondition("parcel %s is %s, not ready", parcelID, parcel.Info.Status)
		}

		if err := s.store.Put(store.InterestedAgentPath(parcelID, actor.ID), types.InterestedAgent{
			Timestamp:  s.now().UnixMilli(),
			Note:       note,
			ETA:        eta,
			AgentEmail: actor.Email,
			AgentName:  actor.Name,
		}); err != nil {
			return err
		}

		s.notifyOrLog(parcel.Info.WarehouseID, types.Notification{
			Type:       types.NotifAgentInterest,
			Message:    fmt.Sprintf("%s wants to carry parcel %s", actorDisplay(actor), parcelID),
			ParcelID:   parcelID,
			AgentID:    actor.ID,
			AgentEmail: actor.Email,
		})
		return nil
	})
}

// AssignTransporter moves a ready parcel to assigned, notifies the
// chosen agent and clears the interest list. Interest clearing is
// best effort: the assignment stands even when the cleanup write
// fails.
func (s *Service) AssignTransporter(actor Actor, parcelID, transporterID string) error {
	return s.instrument("assign_transporter", func() error {
		parcel, err := s.readParcel(parcelID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(parcel, types.StatusAssigned, lifecycle.Actor{ID: actor.ID, Role: actor.Role}); err != nil {
			return err
		}
		if transporterID == "" {
			return errdefs.Precondition("a transporter is required")
		}

		if err := s.store.Update(store.ParcelInfoPath(parcelID), map[string]any{
			"transporterId": transporterID,
			"status":        string(types.StatusAssigned),
			"assignedAt":    s.now().UnixMilli(),
		}); err != nil {
			return err
		}

		s.notifyOrLog(transporterID, types.Notification{
			Type:     types.NotifAssignment,
			Message:  fmt.Sprintf("You have been assigned parcel %s", parcelID),
			ParcelID: parcelID,
		})

		if err := s.store.Delete(store.InterestedAgentsPath(parcelID)); err != nil {
			plog := log.WithParcelID(parcelID)
			plog.Error().
				Err(fmt.Errorf("clear interest list: %w", errdefs.ErrPartialWrite)).
				Msg("Assignment stands but the interest list was not cleared")
		}
		return nil
	})
}

// UpdateStatus advances a parcel along its lifecycle on behalf of the
// assigned transporter, stamping the matching timestamp and notifying
// the owner
func (s *Service) UpdateStatus(actor Actor, parcelID string, target types.ParcelStatus) error {
	return s.instrument("update_status", func() error {
		parcel, err := s.readParcel(parcelID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(parcel, target, lifecycle.Actor{ID: actor.ID, Role: actor.Role}); err != nil {
			return err
		}

		fields := map[string]any{"status": string(target)}
		if field := lifecycle.TimestampField(target); field != "" {
			fields[field] = s.now().UnixMilli()
		}
		if err := s.store.Update(store.ParcelInfoPath(parcelID), fields); err != nil {
			return err
		}

		s.notifyOrLog(parcel.Info.OwnerID, types.Notification{
			Type:     types.NotifStatusUpdate,
			Message:  fmt.Sprintf("Parcel %s is now %s", parcelID, target),
			ParcelID: parcelID,
		})

		plog := log.WithParcelID(parcelID)
		plog.Info().
			Str("from", string(parcel.Info.Status)).
			Str("to", string(target)).
			Msg("Parcel status updated")
		return nil
	})
}

// CancelParcel terminates a parcel from any non-terminal state
func (s *Service) CancelParcel(actor Actor, parcelID string) error {
	return s.instrument("cancel_parcel", func() error {
		parcel, err := s.readParcel(parcelID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(parcel, types.StatusCancelled, lifecycle.Actor{ID: actor.ID, Role: actor.Role}); err != nil {
			return err
		}

		if err := s.store.Update(store.ParcelInfoPath(parcelID), map[string]any{
			"status": string(types.StatusCancelled),
		}); err != nil {
			return err
		}

		s.notifyOrLog(parcel.Info.OwnerID, types.Notification{
			Type:     types.NotifStatusUpdate,
			Message:  fmt.Sprintf("Parcel %s has been cancelled", parcelID),
			ParcelID: parcelID,
		})
		return nil
	})
}

// DeleteParcel removes a parcel record and releases its tracker back
// to the available pool
func (s *Service) DeleteParcel(actor Actor, parcelID string) error {
	return s.instrument("delete_parcel", func() error {
		if actor.Role != types.RoleWarehouse && actor.Role != types.RoleAdmin {
			return errdefs.PermissionDenied("role %q may not delete parcels", actor.Role)
		}

		parcel, err := s.readParcel(parcelID)
		if err != nil {
			return err
		}

		if parcel.Info.DeviceID != "" {
			if err := s.store.Update(store.DeviceInfoPath(parcel.Info.DeviceID), map[string]any{
				"status":           string(types.DeviceAvailable),
				"assignedParcelId": "",
			}); err != nil {
				return err
			}
		}

		if err := s.store.Delete(store.ParcelPath(parcelID)); err != nil {
			return err
		}

		plog := log.WithParcelID(parcelID)
		plog.Info().
			Str("device_id", parcel.Info.DeviceID).
			Msg("Parcel deleted, device released")
		return nil
	})
}

// SettingsForm is the slice of a profile its own user may edit
type SettingsForm struct {
	Name     string
	Phone    string
	PhotoURL string
}

// UpdateSettings rewrites the actor's own display fields. Role,
// verification and ban state are not reachable from here; those stay
// behind the admin actions.
func (s *Service) UpdateSettings(actor Actor, form SettingsForm) error {
	return s.instrument("update_settings", func() error {
		return s.store.Update(store.ProfilePath(actor.ID), map[string]any{
			"name":     form.Name,
			"phone":    form.Phone,
			"photoURL": form.PhotoURL,
		})
	})
}

// ApproveUser marks an account verified
func (s *Service) ApproveUser(actor Actor, uid string) error {
	return s.instrument("approve_user", func() error {
		if actor.Role != types.RoleAdmin {
			return errdefs.PermissionDenied("role %q may not approve users", actor.Role)
		}
		return s.store.Update(store.ProfilePath(uid), map[string]any{
			"verified": true,
		})
	})
}

// RejectUser bans an account and revokes verification
func (s *Service) RejectUser(actor Actor, uid string) error {
	return s.instrument("reject_user", func() error {
		if actor.Role != types.RoleAdmin {
			return errdefs.PermissionDenied("role %q may not reject users", actor.Role)
		}
		return s.store.Update(store.ProfilePath(uid), map[string]any{
			"verified": false,
			"banned":   true,
		})
	})
}

// Counts reports fleet-wide parcel and account totals for the gauge
// collector
func (s *Service) Counts() (metrics.Counts, error) {
	counts := metrics.Counts{
		ParcelsByStatus: make(map[string]int),
		UsersByRole:     make(map[string]int),
	}

	raw, err := s.store.Get(store.ParcelsRoot)
	if err != nil {
		return counts, err
	}
	parcels, _ := raw.(map[string]any)
	for id, entry := range parcels {
		var parcel types.Parcel
		if err := store.Decode(entry, &parcel); err != nil {
			s.logger.Error().Err(err).Str("parcel_id", id).Msg("Skipping undecodable parcel")
			continue
		}
		counts.ParcelsByStatus[string(parcel.Info.Status)]++
	}

	raw, err = s.store.Get(store.UsersRoot)
	if err != nil {
		return counts, err
	}
	users, _ := raw.(map[string]any)
	for uid, entry := range users {
		node, ok := entry.(map[string]any)
		if !ok || node["profile"] == nil {
			continue
		}
		var profile types.UserProfile
		if err := store.Decode(node["profile"], &profile); err != nil {
			s.logger.Error().Err(err).Str("user_id", uid).Msg("Skipping undecodable profile")
			continue
		}
		counts.UsersByRole[string(profile.Role)]++
		if !profile.Verified && !profile.Banned {
			counts.UsersPending++
		}
	}

	return counts, nil
}

func (s *Service) readParcel(parcelID string) (types.Parcel, error) {
	raw, err := s.store.Get(store.ParcelPath(parcelID))
	if err != nil {
		return types.Parcel{}, err
	}
	if raw == nil {
		return types.Parcel{}, fmt.Errorf("parcel %s: %w", parcelID, errdefs.ErrNotFound)
	}
	var parcel types.Parcel
	if err := store.Decode(raw, &parcel); err != nil {
		return types.Parcel{}, err
	}
	parcel.ID = parcelID
	return parcel, nil
}

func (s *Service) readDevice(deviceID string) (types.Device, error) {
	raw, err := s.store.Get(store.DevicePath(deviceID))
	if err != nil {
		return types.Device{}, err
	}
	if raw == nil {
		return types.Device{}, fmt.Errorf("device %s: %w", deviceID, errdefs.ErrNotFound)
	}
	var dev types.Device
	if err := store.Decode(raw, &dev); err != nil {
		return types.Device{}, err
	}
	dev.ID = deviceID
	return dev, nil
}

// notifyOrLog pushes a notification; feed failures never fail the
// action that produced them
func (s *Service) notifyOrLog(recipient string, n types.Notification) {
	if recipient == "" {
		return
	}
	if err := notify.Push(s.store, recipient, n); err != nil {
		s.logger.Error().Err(err).Str("recipient", recipient).Msg("Failed to push notification")
	}
}

func actorDisplay(actor Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	return actor.Email
}
