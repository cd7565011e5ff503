// Package bridge relays client lifecycle events between processes so that
// a fleet of workers can observe each other's broker connectivity.
package bridge

import "github.com/hongjunjie0928/jango-chatRoom/src/events"

// Relay is an events.Bridge with an explicit lifecycle.
type Relay interface {
	events.Bridge

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the relay connection.
	Stop() error
}

// LocalTarget receives events relayed from other instances. *events.Bus
// implements it.
type LocalTarget interface {
	EmitLocal(ev events.Event)
}
