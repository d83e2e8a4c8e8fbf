package chathub

import "freelynx/backend/internal/models"

// Client is the interface for a live connection. It abstracts the transport so
// the hub, the presence registry and the room router can handle any
// connection uniformly.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// GetConnID returns an identifier unique to this connection, used in logs.
	GetConnID() string

	// Deliver queues an outbound frame without blocking. It returns false when
	// the frame was dropped because the connection is closed or its buffer is
	// full.
	Deliver(env models.Envelope) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close stops the write pump. It is safe to call more than once.
	Close()
}
