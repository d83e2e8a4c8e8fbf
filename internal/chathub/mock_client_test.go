package chathub_test

import (
	"encoding/json"
	"freelynx/backend/internal/models"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// MockClient is an in-memory chathub.Client. Delivered frames land in a
// buffered channel; a full buffer or a closed client drops them like the
// websocket client does.
type MockClient struct {
	userID string
	connID string

	RecvChannel chan models.Envelope

	mu     sync.Mutex
	closed bool
	ran    bool
}

func newMockClient(userID string) *MockClient {
	return newMockClientWithBuffer(userID, 16)
}

func newMockClientWithBuffer(userID string, size int) *MockClient {
	return &MockClient{
		userID:      userID,
		connID:      userID + "-conn",
		RecvChannel: make(chan models.Envelope, size),
	}
}

func (c *MockClient) GetUserID() string { return c.userID }
func (c *MockClient) GetConnID() string { return c.connID }

func (c *MockClient) Deliver(env models.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.RecvChannel <- env:
		return true
	default:
		return false
	}
}

func (c *MockClient) Run() {
	c.mu.Lock()
	c.ran = true
	c.mu.Unlock()
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DrainMessages returns every frame delivered so far.
func (c *MockClient) DrainMessages() []models.Envelope {
	var frames []models.Envelope
	for {
		select {
		case env := <-c.RecvChannel:
			frames = append(frames, env)
		default:
			return frames
		}
	}
}

// mustEnvelope builds a client->server frame.
func mustEnvelope(t *testing.T, event, ack string, payload any) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	env.Ack = ack
	return env
}

func decodeData[T any](t *testing.T, env models.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
