// Package central implements a Bluetooth Low Energy central-role connection manager.
//
// The Manager discovers peripherals advertising a target service, connects to them,
// negotiates GATT discovery of a single transfer characteristic, subscribes to its
// notifications and keeps an open-ended set of live connections:
//   - Discovery and connect control with an RSSI admission filter
//   - A per-peripheral GATT negotiation state machine
//   - A single cleanup path for every terminal error
//   - Observer notifications delivered off the worker goroutine
//
// All radio interaction and state mutation happens on one worker goroutine. A Radio
// implementation receives fire-and-forget requests and reports results back as Events.
package central
