// Package log provides structured logging for Traceon using zerolog.
//
// It wraps a single global zerolog instance initialized via Init, with
// helpers that derive child loggers carrying component, parcel, device,
// or user fields. Console output is the default; JSON output is meant
// for deployments that ship logs to an aggregator.
package log
