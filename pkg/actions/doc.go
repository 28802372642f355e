// Package actions implements the mutating operations behind the
// dashboards: parcel intake, interest, assignment, lifecycle moves,
// and account approval.
//
// Actions are fire and forget against the store. They validate role
// and state before the first write and then return; the read side
// never learns anything from an action's return value, only from the
// store snapshots the writes produce. Notification pushes ride along
// with the action that caused them and are allowed to fail without
// failing it.
package actions
