package chathub_test

import (
	"context"
	"errors"
	"freelynx/backend/internal/chathub"
	"freelynx/backend/internal/models"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.MessageEvent
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, evt models.MessageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) Close() error { return nil }

// pipelineFixture wires a hub over a MockStorage with alice and bob online in
// conversation c1.
type pipelineFixture struct {
	storage *MockStorage
	hub     *chathub.ManagerService
	alice   *MockClient
	bob     *MockClient
	conv    *models.Conversation
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	s := newPresenceTolerantStorage()
	hub := chathub.NewManagerService(s, nil, nil)
	f := &pipelineFixture{
		storage: s,
		hub:     hub,
		alice:   newMockClient("alice"),
		bob:     newMockClient("bob"),
		conv:    &models.Conversation{ID: "c1", Participants: []string{"alice", "bob"}},
	}
	hub.Presence.SetOnline(context.Background(), "alice", f.alice)
	hub.Presence.SetOnline(context.Background(), "bob", f.bob)
	s.On("GetConversation", "c1").Return(f.conv, nil).Maybe()
	return f
}

func storedMessage(id uint, sender, body string) *models.Message {
	return &models.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		Body:           body,
		CreatedAt:      time.Date(2026, 5, 1, 10, 0, int(id), 0, time.UTC),
	}
}

func TestPipeline_SendPersistsThenBroadcastsToWholeRoom(t *testing.T) {
	f := newPipelineFixture(t)
	msg := storedMessage(42, "alice", "hello")
	f.storage.On("AppendMessage", "c1", "alice", "hello", mock.Anything).Return(msg, nil).Once()
	f.storage.On("TouchLastMessage", "c1", msg.Summary()).Return(nil).Once()

	got, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{
		ConversationID: "c1",
		Body:           "  hello  ",
		ClientID:       "tmp-7",
	})

	require.NoError(t, err)
	assert.Equal(t, uint(42), got.ID)
	f.storage.AssertExpectations(t)
	f.storage.AssertNumberOfCalls(t, "GetConversation", 1)

	for _, c := range []*MockClient{f.alice, f.bob} {
		frames := c.DrainMessages()
		require.Len(t, frames, 1, c.GetUserID())
		assert.Equal(t, models.EventMessageNew, frames[0].Event)
		payload := decodeData[models.NewMessage](t, frames[0])
		assert.Equal(t, uint(42), payload.Message.ID)
		assert.Equal(t, "alice", payload.Message.SenderID)
		assert.Equal(t, "hello", payload.Message.Body)
		assert.Equal(t, "tmp-7", payload.ClientID, "client token is threaded back")
		assert.False(t, payload.Message.CreatedAt.IsZero(), "server timestamp is included")
	}
}

func TestPipeline_PersistFailureDoesNotBroadcast(t *testing.T) {
	f := newPipelineFixture(t)
	f.storage.On("AppendMessage", "c1", "alice", "hello", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	_, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "c1", Body: "hello"})

	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, f.alice.DrainMessages())
	assert.Empty(t, f.bob.DrainMessages())
	f.storage.AssertNotCalled(t, "TouchLastMessage", mock.Anything, mock.Anything)
}

func TestPipeline_SummaryFailureStillBroadcasts(t *testing.T) {
	f := newPipelineFixture(t)
	msg := storedMessage(1, "bob", "on it")
	f.storage.On("AppendMessage", "c1", "bob", "on it", mock.Anything).Return(msg, nil).Once()
	f.storage.On("TouchLastMessage", "c1", mock.Anything).Return(errors.New("timeout")).Once()

	_, err := f.hub.Pipeline.Send(context.Background(), "bob", models.SendRequest{ConversationID: "c1", Body: "on it"})

	assert.NoError(t, err, "the summary is a cache; the message itself is stored")
	assert.Len(t, f.alice.DrainMessages(), 1)
	assert.Len(t, f.bob.DrainMessages(), 1)
}

func TestPipeline_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.SendRequest
	}{
		{"missing conversation", models.SendRequest{Body: "hi"}},
		{"empty body without attachments", models.SendRequest{ConversationID: "c1", Body: "   "}},
		{"body too long", models.SendRequest{ConversationID: "c1", Body: strings.Repeat("x", 4001)}},
		{"too many attachments", models.SendRequest{ConversationID: "c1", Attachments: make([]models.Attachment, 11)}},
		{"attachment without url", models.SendRequest{ConversationID: "c1", Attachments: []models.Attachment{{Name: "a.pdf"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPresenceTolerantStorage()
			hub := chathub.NewManagerService(s, nil, nil)

			_, err := hub.Pipeline.Send(context.Background(), "alice", tt.req)

			assert.ErrorIs(t, err, models.ErrValidation)
			s.AssertNotCalled(t, "GetConversation", mock.Anything)
			s.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPipeline_AttachmentOnlyMessage(t *testing.T) {
	f := newPipelineFixture(t)
	atts := []models.Attachment{{URL: "https://cdn/brief.pdf", Name: "brief.pdf", Size: 2048}}
	msg := storedMessage(3, "alice", "")
	f.storage.On("AppendMessage", "c1", "alice", "", atts).Return(msg, nil).Once()
	f.storage.On("TouchLastMessage", "c1", mock.Anything).Return(nil)

	_, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "c1", Attachments: atts})

	require.NoError(t, err)
	f.storage.AssertExpectations(t)
}

func TestPipeline_NonParticipantIsUnauthorized(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.hub.Pipeline.Send(context.Background(), "mallory", models.SendRequest{ConversationID: "c1", Body: "hey"})

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	f.storage.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.alice.DrainMessages())
}

func TestPipeline_UnknownConversation(t *testing.T) {
	s := newPresenceTolerantStorage()
	s.On("GetConversation", "nope").Return(nil, models.ErrNotFound)
	hub := chathub.NewManagerService(s, nil, nil)

	_, err := hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "nope", Body: "hi"})

	assert.ErrorIs(t, err, models.ErrNotFound)
}

// TestPipeline_SequentialSendsKeepIssuanceOrder sends N messages one after the
// other, as a single connection does, and checks N stored messages arrive in
// the same order.
func TestPipeline_SequentialSendsKeepIssuanceOrder(t *testing.T) {
	const n = 5
	f := newPipelineFixture(t)
	var seq uint
	var stored []string
	f.storage.On("AppendMessage", "c1", "alice", mock.Anything, mock.Anything).
		Return(func(conversationID, senderID, body string) *models.Message {
			seq++
			stored = append(stored, body)
			return storedMessage(seq, senderID, body)
		}, nil).Times(n)
	f.storage.On("TouchLastMessage", "c1", mock.Anything).Return(nil).Times(n)

	var sent []string
	for i := 0; i < n; i++ {
		body := string(rune('a' + i))
		sent = append(sent, body)
		_, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "c1", Body: body})
		require.NoError(t, err)
	}

	assert.Equal(t, sent, stored)
	frames := f.bob.DrainMessages()
	require.Len(t, frames, n)
	for i, frame := range frames {
		payload := decodeData[models.NewMessage](t, frame)
		assert.Equal(t, uint(i+1), payload.Message.ID)
		assert.Equal(t, sent[i], payload.Message.Body)
	}
	f.storage.AssertExpectations(t)
}

func TestPipeline_PublishesMessageEvent(t *testing.T) {
	f := newPipelineFixture(t)
	sink := &recordingSink{}
	f.hub.Pipeline.Events = sink
	msg := storedMessage(5, "alice", "invoice sent")
	f.storage.On("AppendMessage", "c1", "alice", "invoice sent", mock.Anything).Return(msg, nil)
	f.storage.On("TouchLastMessage", "c1", mock.Anything).Return(nil)

	_, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "c1", Body: "invoice sent"})

	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, models.MessageCreated, sink.events[0].Type)
	assert.Equal(t, uint(5), sink.events[0].Message.ID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, sink.events[0].Participants)
}

func TestPipeline_PublishFailureIsNotFatal(t *testing.T) {
	f := newPipelineFixture(t)
	f.hub.Pipeline.Events = &recordingSink{err: errors.New("broker down")}
	msg := storedMessage(6, "alice", "ping")
	f.storage.On("AppendMessage", "c1", "alice", "ping", mock.Anything).Return(msg, nil)
	f.storage.On("TouchLastMessage", "c1", mock.Anything).Return(nil)

	_, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "c1", Body: "ping"})

	require.NoError(t, err)
	assert.Len(t, f.bob.DrainMessages(), 1)
}

// blockingSink holds every Publish until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Publish(ctx context.Context, evt models.MessageEvent) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func (s *blockingSink) Close() error { return nil }

func TestPipeline_SlowEventStreamDoesNotDelayDelivery(t *testing.T) {
	f := newPipelineFixture(t)
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.hub.Pipeline.Events = sink
	msg := storedMessage(8, "alice", "are you there?")
	f.storage.On("AppendMessage", "c1", "alice", "are you there?", mock.Anything).Return(msg, nil)
	f.storage.On("TouchLastMessage", "c1", mock.Anything).Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.hub.Pipeline.Send(context.Background(), "alice", models.SendRequest{ConversationID: "c1", Body: "are you there?"})
		done <- err
	}()

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("event was never published")
	}
	select {
	case frame := <-f.bob.RecvChannel:
		assert.Equal(t, models.EventMessageNew, frame.Event)
	default:
		t.Fatal("bob must receive the message while the event stream is still blocked")
	}

	close(sink.release)
	require.NoError(t, <-done)
}
