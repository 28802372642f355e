package store

import "strings"

// Root collections. These literals are shared with the device firmware
// and existing dashboards and must stay exactly as they are.
const (
	UsersRoot   = "users"
	ParcelsRoot = "parcels"
	DevicesRoot = "SmartParcels"
	AdminsRoot  = "system/admins"
)

// keyReplacer strips the characters the store forbids in path segments
var keyReplacer = strings.NewReplacer(".", "_", "#", "_", "$", "_", "[", "_", "]", "_")

// SanitizeKey makes a free-form string (notably an email address) safe
// for use as a path segment.
func SanitizeKey(s string) string {
	return keyReplacer.Replace(s)
}

// Join builds a slash path from segments
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func ProfilePath(uid string) string {
	return Join(UsersRoot, uid, "profile")
}

func NotificationsPath(uid string) string {
	return Join(UsersRoot, uid, "notifications")
}

func NotificationPath(uid, notifID string) string {
	return Join(UsersRoot, uid, "notifications", notifID)
}

func ParcelPath(parcelID string) string {
	return Join(ParcelsRoot, parcelID)
}

func ParcelInfoPath(parcelID string) string {
	return Join(ParcelsRoot, parcelID, "info")
}

func InterestedAgentsPath(parcelID string) string {
	return Join(ParcelsRoot, parcelID, "interestedAgents")
}

func InterestedAgentPath(parcelID, agentID string) string {
	return Join(ParcelsRoot, parcelID, "interestedAgents", agentID)
}

func DevicePath(deviceID string) string {
	return Join(DevicesRoot, deviceID)
}

func DeviceInfoPath(deviceID string) string {
	return Join(DevicesRoot, deviceID, "info")
}

func DeviceCurrentPath(deviceID string) string {
	return Join(DevicesRoot, deviceID, "current")
}

func DeviceHistoryPath(deviceID string) string {
	return Join(DevicesRoot, deviceID, "history")
}

func DeviceAlertsPath(deviceID string) string {
	return Join(DevicesRoot, deviceID, "alerts")
}

func AdminMarkerPath(uid string) string {
	return Join(AdminsRoot, uid)
}
