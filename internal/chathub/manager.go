package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/events"
	"freelynx/backend/internal/models"
	"freelynx/backend/internal/presence"
	"freelynx/backend/internal/storage"
	"log/slog"
	"sync"
	"time"
)

// ManagerService is the process-wide hub: it owns the presence registry, the
// room router and the message pipeline, and dispatches socket events to them.
// Handlers of one connection run sequentially on its read pump; handlers of
// different connections run concurrently and only touch shared state through
// the registry's atomic operations.
type ManagerService struct {
	Presence *presence.Registry
	Router   *RoomRouter
	Pipeline *Pipeline
	Storage  storage.Storage
	Logger   *slog.Logger

	mu      sync.Mutex
	clients map[Client]struct{}
}

func NewManagerService(s storage.Storage, sink events.Sink, logger *slog.Logger) *ManagerService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chathub")

	var mirror presence.Mirror
	if s != nil {
		mirror = s
	}
	reg := presence.NewRegistry(mirror, logger)
	router := NewRoomRouter(reg, s, logger)

	return &ManagerService{
		Presence: reg,
		Router:   router,
		Pipeline: NewPipeline(s, router, sink, logger),
		Storage:  s,
		Logger:   logger,
		clients:  make(map[Client]struct{}),
	}
}

// Register accepts a freshly opened connection and starts its pumps. The user
// becomes routable only after it sends user:online.
func (m *ManagerService) Register(c Client) {
	m.mu.Lock()
	m.clients[c] = struct{}{}
	n := len(m.clients)
	m.mu.Unlock()

	m.Logger.Info("client connected", "conn_id", c.GetConnID(), "user_id", c.GetUserID(), "connections", n)
	c.Run()
}

// Unregister handles a disconnect. The presence entry is removed only if this
// connection still owns it.
func (m *ManagerService) Unregister(c Client) {
	c.Close()
	m.mu.Lock()
	delete(m.clients, c)
	n := len(m.clients)
	m.mu.Unlock()

	removed := m.Presence.Remove(context.Background(), c)
	m.Logger.Info("client disconnected",
		"conn_id", c.GetConnID(), "user_id", c.GetUserID(), "presence_removed", removed, "connections", n)
}

// Connections is the number of open connections, routable or not.
func (m *ManagerService) Connections() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.clients))
}

// Shutdown closes every open connection and waits until their pumps have
// unregistered them, or until ctx is done.
func (m *ManagerService) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]Client, 0, len(m.clients))
	for c := range m.clients {
		open = append(open, c)
	}
	m.mu.Unlock()

	m.Logger.Info("closing connections", "connections", len(open))
	for _, c := range open {
		c.Close()
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for m.Connections() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// HandleEvent runs one client event to completion.
func (m *ManagerService) HandleEvent(ctx context.Context, c Client, env models.Envelope) {
	ctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()

	switch env.Event {
	case models.EventUserOnline:
		m.handleUserOnline(ctx, c, env)
	case models.EventConversationStart:
		m.handleConversationStart(ctx, c, env)
	case models.EventMessageSend:
		m.handleMessageSend(ctx, c, env)
	case models.EventMessageRead:
		m.handleMessageRead(ctx, c, env)
	case models.EventPing:
		m.reply(c, models.EventPong, env.Ack, nil)
	default:
		m.replyError(c, env.Event, env.Ack, fmt.Errorf("%w: unknown event %q", models.ErrValidation, env.Event), "")
	}
}

func (m *ManagerService) handleUserOnline(ctx context.Context, c Client, env models.Envelope) {
	var userID string
	if err := json.Unmarshal(env.Data, &userID); err != nil {
		m.replyError(c, env.Event, env.Ack, fmt.Errorf("%w: user id must be a string", models.ErrValidation), "")
		return
	}
	if userID != c.GetUserID() {
		m.replyError(c, env.Event, env.Ack, fmt.Errorf("user %s: %w", userID, models.ErrUnauthorized), "")
		return
	}

	if prev := m.Presence.SetOnline(ctx, userID, c); prev != nil {
		m.Logger.Info("user moved to a new connection", "user_id", userID, "conn_id", c.GetConnID())
	}
	if env.Ack != "" {
		m.reply(c, models.EventAck, env.Ack, map[string]bool{"online": true})
	}
}

func (m *ManagerService) handleConversationStart(ctx context.Context, c Client, env models.Envelope) {
	var req models.StartRequest
	if err := decode(env.Data, &req); err != nil || req.ReceiverID == "" {
		m.replyError(c, env.Event, env.Ack, fmt.Errorf("%w: receiverId is required", models.ErrValidation), "")
		return
	}

	ack, err := m.Router.Start(ctx, c, req.ReceiverID)
	if err != nil {
		m.replyError(c, env.Event, env.Ack, err, "")
		return
	}
	m.reply(c, models.EventAck, env.Ack, ack)
}

func (m *ManagerService) handleMessageSend(ctx context.Context, c Client, env models.Envelope) {
	var req models.SendRequest
	if err := decode(env.Data, &req); err != nil {
		m.replyError(c, env.Event, env.Ack, fmt.Errorf("%w: malformed message", models.ErrValidation), "")
		return
	}

	msg, err := m.Pipeline.Send(ctx, c.GetUserID(), req)
	if err != nil {
		m.replyError(c, env.Event, env.Ack, err, req.ClientID)
		return
	}
	if env.Ack != "" {
		m.reply(c, models.EventAck, env.Ack, models.NewMessage{Message: msg, ClientID: req.ClientID})
	}
}

func (m *ManagerService) handleMessageRead(ctx context.Context, c Client, env models.Envelope) {
	var req models.ReadRequest
	if err := decode(env.Data, &req); err != nil || req.ConversationID == "" {
		m.replyError(c, env.Event, env.Ack, fmt.Errorf("%w: conversationId is required", models.ErrValidation), "")
		return
	}

	updated, err := m.Storage.MarkRead(ctx, req.ConversationID, c.GetUserID(), req.UpTo)
	if err != nil {
		m.replyError(c, env.Event, env.Ack, err, "")
		return
	}
	if env.Ack != "" {
		m.reply(c, models.EventAck, env.Ack, models.ReadAck{ConversationID: req.ConversationID, Updated: updated})
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(data, v)
}

// reply sends a frame to c alone.
func (m *ManagerService) reply(c Client, event, ack string, payload any) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		m.Logger.Error("failed to encode reply", "event", event, "err", err)
		return
	}
	env.Ack = ack
	if !c.Deliver(env) {
		m.Logger.Warn("reply dropped", "conn_id", c.GetConnID(), "event", event)
	}
}

// replyError reports a failed event to the initiating connection only.
// Internal failures are logged in full and reported generically.
func (m *ManagerService) replyError(c Client, event, ack string, err error, clientID string) {
	code := models.Code(err)
	message := err.Error()
	if code == models.CodeInternal {
		m.Logger.Error("event failed", "event", event, "user_id", c.GetUserID(), "err", err)
		message = "internal error"
	}
	m.reply(c, models.EventError, ack, models.ErrorPayload{
		Event:    event,
		Code:     code,
		Message:  message,
		ClientID: clientID,
	})
}
