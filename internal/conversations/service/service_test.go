package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"inbox_backend/internal/conversations/repository"
	"inbox_backend/internal/conversations/transport"
	"inbox_backend/internal/events"
	"inbox_backend/platform/apperr"
	"inbox_backend/platform/logger"
)

const msgUnexpectedError = "unexpected error: %v"

type fakeConvRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*repository.Conversation
	touched       []uuid.UUID
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{conversations: make(map[uuid.UUID]*repository.Conversation)}
}

func (f *fakeConvRepo) GetByID(_ context.Context, id uuid.UUID) (repository.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return repository.Conversation{}, apperr.NotFound("conversation not found")
	}
	return *c, nil
}

func (f *fakeConvRepo) ListByInbox(_ context.Context, inboxID uuid.UUID, status string) ([]repository.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Conversation
	for _, c := range f.conversations {
		if c.InboxID == inboxID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) FindOpenByContact(_ context.Context, inboxID uuid.UUID, contactPhone string) (*repository.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.InboxID == inboxID && c.ContactPhone == contactPhone && c.Status == repository.StatusOpen {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeConvRepo) Create(_ context.Context, inboxID uuid.UUID, contactPhone, contactName string) (repository.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := repository.Conversation{
		ID:           uuid.New(),
		InboxID:      inboxID,
		ContactPhone: contactPhone,
		ContactName:  contactName,
		Status:       repository.StatusOpen,
	}
	f.conversations[c.ID] = &c
	return c, nil
}

func (f *fakeConvRepo) TouchLastMessage(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeConvRepo) assign(id, agentID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id].AssignedAgentID = &agentID
}

func (f *fakeConvRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	c.Status = status
	return nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.Publish(context.Background(), event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func newTestService(repo repository.Repository, bus events.Bus) *Service {
	return New(repo, bus, logger.New("test"))
}

func TestReceiveInboundCreatesConversationAndPublishes(t *testing.T) {
	repo := newFakeConvRepo()
	bus := &recordingBus{}
	svc := newTestService(repo, bus)

	inboxID := uuid.New()
	conv, err := svc.ReceiveInbound(context.Background(), transport.InboundMessageRequest{
		InboxID:   inboxID,
		FromPhone: "06 12 34 56 78",
	})
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if conv.ContactPhone != "+31612345678" {
		t.Fatalf("expected normalized phone, got %q", conv.ContactPhone)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.published))
	}
	received, ok := bus.published[0].(events.ConversationReceived)
	if !ok {
		t.Fatalf("expected ConversationReceived, got %T", bus.published[0])
	}
	if received.ConversationID != conv.ID || received.InboxID != inboxID {
		t.Fatal("expected event to carry conversation and inbox ids")
	}
}

func TestReceiveInboundReusesOpenConversation(t *testing.T) {
	repo := newFakeConvRepo()
	bus := &recordingBus{}
	svc := newTestService(repo, bus)

	inboxID := uuid.New()
	req := transport.InboundMessageRequest{InboxID: inboxID, FromPhone: "+31612345678"}

	first, err := svc.ReceiveInbound(context.Background(), req)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	repo.assign(first.ID, uuid.New())

	second, err := svc.ReceiveInbound(context.Background(), req)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if first.ID != second.ID {
		t.Fatal("expected the open conversation to be reused")
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected no publish for an assigned conversation, got %d events", len(bus.published))
	}
	if len(repo.touched) != 1 {
		t.Fatalf("expected the second message to touch last_message_at, got %d touches", len(repo.touched))
	}
}

func TestReceiveInboundReannouncesUnassignedConversation(t *testing.T) {
	repo := newFakeConvRepo()
	bus := &recordingBus{}
	svc := newTestService(repo, bus)

	inboxID := uuid.New()
	req := transport.InboundMessageRequest{InboxID: inboxID, FromPhone: "+31612345678"}

	first, err := svc.ReceiveInbound(context.Background(), req)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	// Still unassigned (nobody picked it up, or an agent released it): the
	// next message must be announced again so routing gets another chance.
	second, err := svc.ReceiveInbound(context.Background(), req)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if first.ID != second.ID {
		t.Fatal("expected the open conversation to be reused")
	}
	if len(bus.published) != 2 {
		t.Fatalf("expected a publish for each message on an unassigned conversation, got %d events", len(bus.published))
	}
	received, ok := bus.published[1].(events.ConversationReceived)
	if !ok {
		t.Fatalf("expected ConversationReceived, got %T", bus.published[1])
	}
	if received.ConversationID != first.ID {
		t.Fatal("expected the re-announcement to carry the reused conversation id")
	}
}

func TestReceiveInboundRejectsEmptyPhone(t *testing.T) {
	svc := newTestService(newFakeConvRepo(), &recordingBus{})
	_, err := svc.ReceiveInbound(context.Background(), transport.InboundMessageRequest{
		InboxID:   uuid.New(),
		FromPhone: "   ",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveThenNewInboundOpensFresh(t *testing.T) {
	repo := newFakeConvRepo()
	bus := &recordingBus{}
	svc := newTestService(repo, bus)

	inboxID := uuid.New()
	req := transport.InboundMessageRequest{InboxID: inboxID, FromPhone: "+31612345678"}

	first, err := svc.ReceiveInbound(context.Background(), req)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if err := svc.Resolve(context.Background(), first.ID); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	second, err := svc.ReceiveInbound(context.Background(), req)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new conversation after resolve")
	}
}

func TestListByInboxRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(newFakeConvRepo(), &recordingBus{})
	if _, err := svc.ListByInbox(context.Background(), uuid.New(), "bogus"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
