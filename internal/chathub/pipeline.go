package chathub

import (
	"context"
	"fmt"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/events"
	"freelynx/backend/internal/models"
	"freelynx/backend/internal/storage"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// Pipeline turns a message:send event into a stored message, a refreshed
// conversation summary and a room broadcast, in that order.
type Pipeline struct {
	Storage storage.Storage
	Router  *RoomRouter
	Events  events.Sink
	Logger  *slog.Logger
}

func NewPipeline(s storage.Storage, router *RoomRouter, sink events.Sink, logger *slog.Logger) *Pipeline {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Pipeline{Storage: s, Router: router, Events: sink, Logger: logger}
}

// Send persists and fans out one message. If persistence fails nothing is
// broadcast. Live delivery happens before the event is published, so a slow
// or unreachable event stream never holds up the room. A failed summary update
// or event publish is logged and left for the next send (or a recompute) to
// repair.
func (p *Pipeline) Send(ctx context.Context, senderID string, req models.SendRequest) (*models.Message, error) {
	body := strings.TrimSpace(req.Body)
	if err := validateSend(req.ConversationID, body, req.Attachments); err != nil {
		return nil, err
	}

	conv, err := p.Storage.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, fmt.Errorf("sender %s: %w", senderID, models.ErrUnauthorized)
	}

	msg, err := p.Storage.AppendMessage(ctx, conv, senderID, body, req.Attachments)
	if err != nil {
		return nil, err
	}

	if err := p.Storage.TouchLastMessage(ctx, conv.ID, msg.Summary()); err != nil {
		p.Logger.Warn("conversation summary not updated", "conversation_id", conv.ID, "message_id", msg.ID, "err", err)
	}

	env, err := models.NewEnvelope(models.EventMessageNew, models.NewMessage{Message: msg, ClientID: req.ClientID})
	if err != nil {
		return msg, fmt.Errorf("encode message %d: %w", msg.ID, err)
	}
	roomID := RoomID(senderID, conv.Other(senderID))
	delivered := p.Router.Broadcast(roomID, env)
	p.Logger.Debug("message broadcast", "room_id", roomID, "message_id", msg.ID, "delivered", delivered)

	if err := p.Events.Publish(ctx, models.MessageEvent{
		Type:         models.MessageCreated,
		Message:      *msg,
		Participants: conv.Participants,
		At:           time.Now(),
	}); err != nil {
		p.Logger.Warn("message event not published", "conversation_id", conv.ID, "message_id", msg.ID, "err", err)
	}

	return msg, nil
}

func validateSend(conversationID, body string, attachments []models.Attachment) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationId is required", models.ErrValidation)
	}
	if body == "" && len(attachments) == 0 {
		return fmt.Errorf("%w: message needs a body or an attachment", models.ErrValidation)
	}
	if utf8.RuneCountInString(body) > config.MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", models.ErrValidation, config.MaxBodyLength)
	}
	if len(attachments) > config.MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments", models.ErrValidation, config.MaxAttachments)
	}
	for _, a := range attachments {
		if a.URL == "" {
			return fmt.Errorf("%w: attachment url is required", models.ErrValidation)
		}
		if a.Size < 0 {
			return fmt.Errorf("%w: attachment size cannot be negative", models.ErrValidation)
		}
	}
	return nil
}
