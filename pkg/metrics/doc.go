// Package metrics exposes Prometheus instrumentation and process health
// endpoints for the Traceon backend: fleet gauges (parcels, devices,
// users), record-store counters, per-action histograms, and the
// /health, /ready, and /live handlers. A Collector refreshes the
// parcel and account gauges from a domain source on an interval;
// device gauges are set by the device monitor as it classifies.
package metrics
