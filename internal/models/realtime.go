package models

import (
	"encoding/json"
	"time"
)

// Socket event names.
const (
	EventUserOnline        = "user:online"
	EventConversationStart = "conversation:start"
	EventMessageSend       = "message:send"
	EventMessageNew        = "message:new"
	EventMessageRead       = "message:read"
	EventPing              = "ping"
	EventPong              = "pong"
	EventAck               = "ack"
	EventError             = "error"
)

// Envelope is the frame exchanged over a live connection. A client that wants
// a reply sets Ack; the server answers with an EventAck frame carrying the same
// Ack value.
type Envelope struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope's Data.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Data = data
	return env, nil
}

type StartRequest struct {
	ReceiverID string `json:"receiverId"`
}

type StartAck struct {
	Conversation *Conversation `json:"conversation"`
	RoomID       string        `json:"roomId"`
	Messages     []Message     `json:"messages"`
}

// SendRequest is the payload of message:send. ClientID is an opaque token the
// client uses to reconcile its optimistic echo; it is threaded back untouched.
type SendRequest struct {
	ConversationID string       `json:"conversationId"`
	Body           string       `json:"body"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ClientID       string       `json:"clientId,omitempty"`
}

type NewMessage struct {
	Message  *Message `json:"message"`
	ClientID string   `json:"clientId,omitempty"`
}

type ReadRequest struct {
	ConversationID string `json:"conversationId"`
	UpTo           uint   `json:"upTo"`
}

type ReadAck struct {
	ConversationID string `json:"conversationId"`
	Updated        int64  `json:"updated"`
}

// ErrorPayload is sent only to the connection whose event failed.
type ErrorPayload struct {
	Event    string `json:"event"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
}

// MessageEvent is published to the event stream after a message is stored.
type MessageEvent struct {
	Type         string    `json:"type"`
	Message      Message   `json:"message"`
	Participants []string  `json:"participants"`
	At           time.Time `json:"at"`
}

const MessageCreated = "message.created"
