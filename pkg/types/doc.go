// Package types defines the shared data model for Traceon: parcels,
// tracker devices, user profiles, and notifications, together with the
// status enums used across the store, projection, and API layers.
//
// Field names in JSON tags are part of the record-store wire format and
// must not change; external consumers (device firmware, dashboards)
// address them by those exact keys.
package types
