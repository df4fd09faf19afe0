// Package feed is a client for the HTTP Atom API of an EventStore-compatible
// stream service. It pages through streams in forward order and appends events
// with an expected version check.
package feed
