// Package device derives tracker liveness from firmware heartbeats.
//
// Firmware writes lastSeen as a string of unix milliseconds and has
// shipped builds that append garbage after the digits, so timestamps
// go through ParseMillis rather than a strict parse. A device that has
// not been heard from inside the silence window reads as offline,
// except that an assigned device keeps its declared status so the
// parcel binding stays visible. Only available devices that are
// currently online are eligible for binding to a new parcel.
//
// The Monitor wraps the classifier in a standing collection watch and
// re-runs the classification on a timer, because devices go offline by
// saying nothing at all.
package device
