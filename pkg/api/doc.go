// Package api is the HTTP surface of the daemon: a JSON REST API for
// the mutating actions and one-shot reads, and a websocket stream that
// pushes each authenticated client its role-scoped parcel projection,
// the classified device fleet, and its notification feed.
//
// Authentication is a Bearer JWT; websocket clients pass the same
// token in the query string. Requests re-resolve the caller's profile
// on every call, so approval, rejection and the master-admin bootstrap
// all take effect without re-login.
//
//	POST /api/auth/signup     create account + profile
//	POST /api/auth/login      token + reconciled profile
//	GET  /api/parcels         role-scoped projection snapshot
//	POST /api/parcels         warehouse intake
//	POST /api/parcels/{id}/interest | /assign | /status | /cancel
//	DELETE /api/parcels/{id}
//	GET  /api/devices         classified fleet
//	GET  /api/devices/{id}/history
//	GET  /api/notifications   newest-first window + unread count
//	POST /api/notifications/{id}/read
//	GET  /api/users           admin approvals view
//	PUT  /api/users/me        own profile settings
//	POST /api/users/{id}/approve | /reject
//	GET  /ws                  live dashboard stream
//
// /metrics, /health, /ready and /live are unauthenticated.
package api
