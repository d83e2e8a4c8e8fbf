package chathub

import (
	"context"
	"fmt"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/models"
	"freelynx/backend/internal/presence"
	"freelynx/backend/internal/storage"
	"log/slog"
	"sort"
	"strings"
)

const roomPrefix = "conv:"

// RoomID is the broadcast group of the conversation between a and b. It is
// order-independent, so both sides address the same room without a lookup.
func RoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return roomPrefix + pair[0] + ":" + pair[1]
}

// ParseRoomID recovers the two participants from a room ID.
func ParseRoomID(roomID string) (string, string, bool) {
	rest, ok := strings.CutPrefix(roomID, roomPrefix)
	if !ok {
		return "", "", false
	}
	a, b, ok := strings.Cut(rest, ":")
	if !ok || a == "" || b == "" || strings.Contains(b, ":") {
		return "", "", false
	}
	return a, b, true
}

// RoomRouter resolves rooms to live connections. Membership is not stored:
// it is derived from the room's participants and the presence registry each
// time it is needed, so missed join or leave events cannot leave it stale.
type RoomRouter struct {
	Presence *presence.Registry
	Storage  storage.Storage
	Logger   *slog.Logger
}

func NewRoomRouter(reg *presence.Registry, s storage.Storage, logger *slog.Logger) *RoomRouter {
	return &RoomRouter{Presence: reg, Storage: s, Logger: logger}
}

// MembersOf returns the live connections of the room's online participants.
func (r *RoomRouter) MembersOf(roomID string) []Client {
	a, b, ok := ParseRoomID(roomID)
	if !ok {
		return nil
	}
	var members []Client
	for _, userID := range []string{a, b} {
		h, online := r.Presence.Get(userID)
		if !online {
			continue
		}
		if c, ok := h.(Client); ok {
			members = append(members, c)
		}
	}
	return members
}

// Broadcast delivers env to every member of the room and returns how many
// connections accepted it. A member whose buffer is full misses the frame;
// it can recover the message from history.
func (r *RoomRouter) Broadcast(roomID string, env models.Envelope) int {
	delivered := 0
	for _, c := range r.MembersOf(roomID) {
		if c.Deliver(env) {
			delivered++
			continue
		}
		r.Logger.Warn("dropped frame for slow or closed connection",
			"room_id", roomID, "user_id", c.GetUserID(), "conn_id", c.GetConnID(), "event", env.Event)
	}
	return delivered
}

// Start opens the conversation between the initiator and otherUserID. The
// conversation record is found or created, and the ack carries the room ID and
// the most recent page of history. The other side becomes reachable as soon
// as it is online; no explicit join is required from either connection.
func (r *RoomRouter) Start(ctx context.Context, initiator Client, otherUserID string) (*models.StartAck, error) {
	userID := initiator.GetUserID()
	conv, created, err := r.Storage.FindOrCreateConversation(ctx, userID, otherUserID)
	if err != nil {
		return nil, err
	}

	messages := []models.Message{}
	if !created {
		messages, err = r.Storage.PageMessages(ctx, conv.ID, userID, storage.PageQuery{
			Limit:  config.DefaultPageSize,
			Recent: true,
		})
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}

	roomID := RoomID(userID, otherUserID)
	r.Logger.Info("conversation started",
		"room_id", roomID,
		"conversation_id", conv.ID,
		"created", created,
		"other_online", r.Presence.IsOnline(otherUserID))

	return &models.StartAck{
		Conversation: conv,
		RoomID:       roomID,
		Messages:     messages,
	}, nil
}
