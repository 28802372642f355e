/*
Package store implements Traceon's hierarchical record store: a
schemaless tree of JSON values addressed by slash-separated paths, with
push-based subscriptions that deliver a full subtree snapshot on every
change touching that subtree.

# Architecture

Records live in a single BoltDB bucket. Keys are complete paths to
leaves; interior nodes exist only implicitly, assembled on read by
prefix scan:

	┌───────────────────── RECORD STORE ──────────────────────┐
	│                                                           │
	│  Write path                                               │
	│    Put/Update/Delete                                      │
	│        ↓                                                  │
	│    normalize (JSON round-trip)                            │
	│        ↓                                                  │
	│    one bolt transaction: clear subtree, write leaves      │
	│        ↓                                                  │
	│    publish: assemble + fan out snapshots                  │
	│                                                           │
	│  Read path                                                │
	│    Get(path) → leaf value, or nested map built from       │
	│    every key under path/                                  │
	│                                                           │
	│  Subscriptions                                            │
	│    Subscribe(path) → buffered channel of Snapshot         │
	│    - initial snapshot delivered immediately               │
	│    - a change anywhere on the same root-to-leaf line      │
	│      re-delivers the whole subtree                        │
	│    - non-blocking fan-out: slow consumers skip            │
	│      intermediate snapshots, writers never stall          │
	│                                                           │
	└───────────────────────────────────────────────────────────┘

The tree layout is fixed by the external consumers (device firmware and
dashboards) and must not drift:

	users/{uid}/profile
	users/{uid}/notifications/{notifId}
	parcels/{parcelId}/info|interestedAgents|alerts
	SmartParcels/{deviceId}/info|current|history|alerts
	system/admins/{uid}

Path segments derived from free-form strings (emails in particular) go
through SanitizeKey first; the characters  . # $ [ ]  are forbidden in
keys.

Within one subscription, snapshots arrive in write order. Across
subscriptions there is no ordering guarantee: a consumer composing two
paths (a parcel and its device reading) has to treat the pair as
eventually consistent.
*/
package store
