package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/helpdesk-labs/ticket-tracker/internal/auth"
	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	"github.com/helpdesk-labs/ticket-tracker/internal/events"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	store      *repository.MemoryStore
	clock      *fakeClock
	audit      *AuditLog
	tickets    *TicketStore
	service    *TicketService
	dispatcher *recordingDispatcher

	admin    *domain.Principal
	operator *domain.Principal
	alice    *domain.Principal
	bob      *domain.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := newFakeClock()
	audit := NewAuditLog(store, clock.Now)
	tickets := NewTicketStore(store, audit, nil, clock.Now)
	dispatcher := &recordingDispatcher{}

	env := &testEnv{
		store:      store,
		clock:      clock,
		audit:      audit,
		tickets:    tickets,
		dispatcher: dispatcher,
		service: NewTicketService(TicketDependencies{
			Gate:       auth.NewGate(),
			Store:      tickets,
			Audit:      audit,
			UserRepo:   store.Users(),
			Dispatcher: dispatcher,
		}),
	}
	env.admin = env.seedUser(t, "u-admin", "Ada Admin", "admin@example.com", domain.RoleAdmin)
	env.operator = env.seedUser(t, "u-op", "Oscar Operator", "op@example.com", domain.RoleOperator)
	env.alice = env.seedUser(t, "u-alice", "Alice", "alice@example.com", domain.RoleClient)
	env.bob = env.seedUser(t, "u-bob", "Bob", "bob@example.com", domain.RoleClient)
	return env
}

func (e *testEnv) seedUser(t *testing.T, id, name, email string, role domain.Role) *domain.Principal {
	t.Helper()
	err := e.store.Users().Create(context.Background(), &domain.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    e.clock.Now(),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return &domain.Principal{ActorID: id, Role: role, Name: name}
}

func (e *testEnv) createTicket(t *testing.T, owner *domain.Principal, subject string, priority string) *domain.Ticket {
	t.Helper()
	ticket, err := e.service.CreateTicket(context.Background(), e.operator, CreateTicketInput{
		OwnerID:     owner.ActorID,
		Subject:     subject,
		Description: subject + " details",
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("CreateTicket(%q) error = %v", subject, err)
	}
	return ticket
}

func (e *testEnv) history(t *testing.T, id string) []domain.AuditEntry {
	t.Helper()
	entries, err := e.audit.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	return entries
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", code)
	}
	if !apperrors.IsCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}
