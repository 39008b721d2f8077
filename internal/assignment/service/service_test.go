package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"inbox_backend/internal/assignment/repository"
	"inbox_backend/internal/audit"
	"inbox_backend/platform/logger"
)

const (
	msgExpectedAgent   = "expected an agent, got nil"
	msgUnexpectedError = "unexpected error: %v"
	fmtExpectedAgentID = "expected agent %s, got %s"
)

// fakeRepo is an in-memory Repository for exercising the coordinator. Pickup
// uses a mutex so the conditional write stays atomic under concurrent calls,
// mirroring the storage-level guarantee.
type fakeRepo struct {
	mu sync.Mutex

	settings map[uuid.UUID]*repository.InboxSettings
	members  map[uuid.UUID][]repository.AgentLoad

	assigned           map[uuid.UUID]*uuid.UUID // conversation -> agent
	conversationInbox  map[uuid.UUID]uuid.UUID
	failListMembers    error
	assignCursorCalled int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		settings:          make(map[uuid.UUID]*repository.InboxSettings),
		members:           make(map[uuid.UUID][]repository.AgentLoad),
		assigned:          make(map[uuid.UUID]*uuid.UUID),
		conversationInbox: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeRepo) GetInboxSettings(_ context.Context, inboxID uuid.UUID) (*repository.InboxSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[inboxID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeRepo) ListMembers(_ context.Context, inboxID uuid.UUID, onlineOnly bool) ([]repository.AgentLoad, error) {
	if f.failListMembers != nil {
		return nil, f.failListMembers
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []repository.AgentLoad
	for _, m := range f.members[inboxID] {
		if onlineOnly && m.Availability != repository.AvailabilityOnline {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (f *fakeRepo) AssignConversation(_ context.Context, conversationID, agentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := agentID
	f.assigned[conversationID] = &id
	return nil
}

func (f *fakeRepo) AssignIfUnassigned(_ context.Context, conversationID, agentID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assigned[conversationID] != nil {
		return false, nil
	}
	id := agentID
	f.assigned[conversationID] = &id
	return true, nil
}

func (f *fakeRepo) AssignWithCursor(_ context.Context, conversationID, inboxID, agentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := agentID
	f.assigned[conversationID] = &id
	if s, ok := f.settings[inboxID]; ok {
		cursor := agentID
		s.LastAssignedAgentID = &cursor
	}
	f.assignCursorCalled++

	// Keep the fake's open counts in step so successive auto-assigns see
	// realistic load.
	for i, m := range f.members[inboxID] {
		if m.ID == agentID {
			f.members[inboxID][i].OpenConversations++
		}
	}
	return nil
}

func (f *fakeRepo) UnassignConversation(_ context.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[conversationID] = nil
	return nil
}

func (f *fakeRepo) GetConversationInbox(_ context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inboxID, ok := f.conversationInbox[conversationID]
	if !ok {
		return uuid.Nil, errors.New("conversation not found")
	}
	return inboxID, nil
}

func (f *fakeRepo) IsInboxMember(_ context.Context, inboxID, agentID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[inboxID] {
		if m.ID == agentID {
			return true, nil
		}
	}
	return false, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    error
}

func (f *fakeAudit) Record(_ context.Context, entry audit.Entry) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Entry
	for _, e := range f.entries {
		if e.ConversationID == conversationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestService(repo *fakeRepo, auditLog *fakeAudit) *Service {
	return New(repo, auditLog, nil, logger.New("test"))
}

func seedInbox(repo *fakeRepo, maxPerAgent *int, agents ...repository.AgentLoad) uuid.UUID {
	inboxID := uuid.New()
	repo.settings[inboxID] = &repository.InboxSettings{
		ID:                       inboxID,
		AutoAssignmentEnabled:    true,
		MaxConversationsPerAgent: maxPerAgent,
	}
	repo.members[inboxID] = agents
	return repo.settings[inboxID].ID
}

func onlineAgent(name string, open int) repository.AgentLoad {
	return repository.AgentLoad{
		ID:                uuid.New(),
		DisplayName:       name,
		Availability:      repository.AvailabilityOnline,
		OpenConversations: open,
	}
}

func TestNextAvailableAgentNoCursorPicksFirstByName(t *testing.T) {
	repo := newFakeRepo()
	a := onlineAgent("alice", 0)
	b := onlineAgent("bob", 0)
	inboxID := seedInbox(repo, nil, b, a)

	svc := newTestService(repo, &fakeAudit{})
	pick, err := svc.NextAvailableAgent(context.Background(), inboxID)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if pick == nil {
		t.Fatal(msgExpectedAgent)
	}
	if pick.ID != a.ID {
		t.Fatalf(fmtExpectedAgentID, a.ID, pick.ID)
	}
}

func TestNextAvailableAgentDisabledInboxReturnsNil(t *testing.T) {
	repo := newFakeRepo()
	inboxID := seedInbox(repo, nil, onlineAgent("alice", 0))
	repo.settings[inboxID].AutoAssignmentEnabled = false

	svc := newTestService(repo, &fakeAudit{})
	pick, err := svc.NextAvailableAgent(context.Background(), inboxID)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if pick != nil {
		t.Fatalf("expected nil for disabled inbox, got %s", pick.ID)
	}
}

func TestNextAvailableAgentUnknownInboxReturnsNil(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeAudit{})
	pick, err := svc.NextAvailableAgent(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if pick != nil {
		t.Fatalf("expected nil for unknown inbox, got %s", pick.ID)
	}
}

func TestAutoAssignRoundRobinWrapsAfterK(t *testing.T) {
	repo := newFakeRepo()
	a := onlineAgent("alice", 0)
	b := onlineAgent("bob", 0)
	c := onlineAgent("carol", 0)
	inboxID := seedInbox(repo, nil, a, b, c)

	svc := newTestService(repo, &fakeAudit{})
	ctx := context.Background()

	var order []uuid.UUID
	for i := 0; i < 4; i++ {
		agent, err := svc.AutoAssign(ctx, inboxID, uuid.New())
		if err != nil {
			t.Fatalf(msgUnexpectedError, err)
		}
		if agent == nil {
			t.Fatal(msgExpectedAgent)
		}
		order = append(order, agent.ID)
	}

	want := []uuid.UUID{a.ID, b.ID, c.ID, a.ID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("call %d: "+fmtExpectedAgentID, i+1, want[i], order[i])
		}
	}
}

func TestNextAvailableAgentCursorGoneFallsBackToFirst(t *testing.T) {
	repo := newFakeRepo()
	a := onlineAgent("alice", 0)
	b := onlineAgent("bob", 0)
	c := onlineAgent("carol", 0)
	inboxID := seedInbox(repo, nil, a, b, c)

	// Cursor points at bob, who has since gone offline.
	cursor := b.ID
	repo.settings[inboxID].LastAssignedAgentID = &cursor
	for i, m := range repo.members[inboxID] {
		if m.ID == b.ID {
			repo.members[inboxID][i].Availability = repository.AvailabilityOffline
		}
	}

	svc := newTestService(repo, &fakeAudit{})
	pick, err := svc.NextAvailableAgent(context.Background(), inboxID)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if pick == nil {
		t.Fatal(msgExpectedAgent)
	}
	if pick.ID != a.ID {
		t.Fatalf("expected fallback to first agent: "+fmtExpectedAgentID, a.ID, pick.ID)
	}
}

func TestAutoAssignConcreteCapScenario(t *testing.T) {
	repo := newFakeRepo()
	a := onlineAgent("agent-a", 0)
	b := onlineAgent("agent-b", 1)
	cap := 2
	inboxID := seedInbox(repo, &cap, a, b)

	svc := newTestService(repo, &fakeAudit{})
	ctx := context.Background()

	first, err := svc.NextAvailableAgent(ctx, inboxID)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if first == nil || first.ID != a.ID {
		t.Fatalf("expected first pick to be agent-a")
	}

	assigned, err := svc.AutoAssign(ctx, inboxID, uuid.New())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if assigned.ID != a.ID {
		t.Fatalf(fmtExpectedAgentID, a.ID, assigned.ID)
	}
	if repo.settings[inboxID].LastAssignedAgentID == nil || *repo.settings[inboxID].LastAssignedAgentID != a.ID {
		t.Fatal("expected cursor to advance to agent-a")
	}

	second, err := svc.NextAvailableAgent(ctx, inboxID)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if second == nil || second.ID != b.ID {
		t.Fatal("expected round-robin to pick agent-b next")
	}
}

func TestAutoAssignNoAgentAvailableReturnsNilWithoutMutation(t *testing.T) {
	repo := newFakeRepo()
	inboxID := seedInbox(repo, nil) // no members

	svc := newTestService(repo, &fakeAudit{})
	agent, err := svc.AutoAssign(context.Background(), inboxID, uuid.New())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if agent != nil {
		t.Fatalf("expected nil agent, got %s", agent.ID)
	}
	if repo.assignCursorCalled != 0 {
		t.Fatal("expected no assignment mutation")
	}
}

func TestPickupConcurrentExactlyOneWinner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAudit{})
	ctx := context.Background()

	conversationID := uuid.New()
	agentA := uuid.New()
	agentB := uuid.New()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, agentID := range []uuid.UUID{agentA, agentB} {
		wg.Add(1)
		go func(slot int, id uuid.UUID) {
			defer wg.Done()
			won, err := svc.Pickup(ctx, conversationID, id)
			if err != nil {
				t.Errorf(msgUnexpectedError, err)
				return
			}
			results[slot] = won
		}(i, agentID)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("expected exactly one winner, got %v and %v", results[0], results[1])
	}

	holder := repo.assigned[conversationID]
	if holder == nil {
		t.Fatal("expected the conversation to end up assigned")
	}
	if *holder != agentA && *holder != agentB {
		t.Fatalf("conversation assigned to unexpected agent %s", *holder)
	}
}

func TestPickupLostRaceWritesNoAudit(t *testing.T) {
	repo := newFakeRepo()
	auditLog := &fakeAudit{}
	svc := newTestService(repo, auditLog)
	ctx := context.Background()

	conversationID := uuid.New()
	if won, err := svc.Pickup(ctx, conversationID, uuid.New()); err != nil || !won {
		t.Fatalf("expected first pickup to win, got won=%v err=%v", won, err)
	}
	if won, err := svc.Pickup(ctx, conversationID, uuid.New()); err != nil || won {
		t.Fatalf("expected second pickup to lose, got won=%v err=%v", won, err)
	}

	if len(auditLog.entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(auditLog.entries))
	}
}

func TestReleaseIsIdempotentAndNeverReassigns(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAudit{})
	ctx := context.Background()

	conversationID := uuid.New()
	agentID := uuid.New()
	if _, err := svc.Pickup(ctx, conversationID, agentID); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Release(ctx, conversationID, agentID); err != nil {
			t.Fatalf(msgUnexpectedError, err)
		}
		if repo.assigned[conversationID] != nil {
			t.Fatalf("release %d: expected conversation to stay unassigned", i+1)
		}
	}
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	repo := newFakeRepo()
	auditLog := &fakeAudit{fail: errors.New("audit sink down")}
	svc := newTestService(repo, auditLog)
	ctx := context.Background()

	conversationID := uuid.New()
	agentID := uuid.New()

	won, err := svc.Pickup(ctx, conversationID, agentID)
	if err != nil {
		t.Fatalf("expected pickup to succeed despite audit failure, got %v", err)
	}
	if !won {
		t.Fatal("expected pickup to win")
	}
	holder := repo.assigned[conversationID]
	if holder == nil || *holder != agentID {
		t.Fatal("expected assignment to stick despite audit failure")
	}
}

func TestTransferRecordsSourceAsPrior(t *testing.T) {
	repo := newFakeRepo()
	auditLog := &fakeAudit{}
	svc := newTestService(repo, auditLog)
	ctx := context.Background()

	conversationID := uuid.New()
	source := uuid.New()
	target := uuid.New()

	if err := svc.Transfer(ctx, conversationID, target, source); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if len(auditLog.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(auditLog.entries))
	}
	entry := auditLog.entries[0]
	if entry.Action != audit.ActionTransfer {
		t.Fatalf("expected action %q, got %q", audit.ActionTransfer, entry.Action)
	}
	if entry.PriorAgentID == nil || *entry.PriorAgentID != source {
		t.Fatal("expected prior agent to carry the source agent id")
	}
	if entry.NewAgentID == nil || *entry.NewAgentID != target {
		t.Fatal("expected new agent to carry the target agent id")
	}
}

func TestManualAssignRecordsAssignerAsPrior(t *testing.T) {
	repo := newFakeRepo()
	auditLog := &fakeAudit{}
	svc := newTestService(repo, auditLog)
	ctx := context.Background()

	conversationID := uuid.New()
	assigner := uuid.New()
	target := uuid.New()

	if err := svc.ManualAssign(ctx, conversationID, target, assigner); err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	entry := auditLog.entries[0]
	if entry.Action != audit.ActionManualAssign {
		t.Fatalf("expected action %q, got %q", audit.ActionManualAssign, entry.Action)
	}
	if entry.PriorAgentID == nil || *entry.PriorAgentID != assigner {
		t.Fatal("expected prior agent to carry the assigner id")
	}
}

func TestCheckAgentAccessFalseOnLookupFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAudit{})

	if svc.CheckAgentAccess(context.Background(), uuid.New(), uuid.New()) {
		t.Fatal("expected access check to fail closed for unknown conversation")
	}
}

func TestTransferableAgentsIncludesOfflineAndExcludesHolder(t *testing.T) {
	repo := newFakeRepo()
	a := onlineAgent("alice", 0)
	b := onlineAgent("bob", 2)
	b.Availability = repository.AvailabilityOffline
	inboxID := seedInbox(repo, nil, a, b)

	svc := newTestService(repo, &fakeAudit{})
	out, err := svc.TransferableAgents(context.Background(), inboxID, &a.ID)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(out) != 1 || out[0].ID != b.ID {
		t.Fatalf("expected only the offline member bob, got %d agents", len(out))
	}
}
