package config

import "time"

const (
	// Message paging
	DefaultPageSize = 50
	MaxPageSize     = 200

	// Message validation
	MaxBodyLength  = 4000
	MaxAttachments = 10

	// Live connection
	SendBufferSize = 256
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 16 * 1024

	// StoreTimeout bounds a single store round-trip issued from a socket event.
	StoreTimeout = 5 * time.Second
)
