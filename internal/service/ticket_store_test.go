package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

var operatorAuthor = domain.AuditAuthor{Role: domain.RoleOperator, ID: "u-op"}

func newStoreTicket(t *testing.T, env *testEnv, state domain.TicketState) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := env.tickets.CreateTicket(ctx, NewTicket{
		OwnerID:     "u-alice",
		CreatedBy:   "u-op",
		Subject:     "VPN drops",
		Description: "Connection resets every hour",
	}, operatorAuthor)
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	switch state {
	case domain.TicketStateInProgress:
		ticket, _, err = env.tickets.ChangeState(ctx, ticket.ID, domain.TicketStateInProgress, operatorAuthor)
	case domain.TicketStateClosed:
		ticket, _, err = env.tickets.ChangeState(ctx, ticket.ID, domain.TicketStateClosed, operatorAuthor)
	}
	if err != nil {
		t.Fatalf("ChangeState(%s) error = %v", state, err)
	}
	return ticket
}

func TestCreateTicketDefaults(t *testing.T) {
	env := newTestEnv(t)
	ticket := newStoreTicket(t, env, domain.TicketStateOpen)

	if ticket.State != domain.TicketStateOpen {
		t.Errorf("state = %s, want open", ticket.State)
	}
	if ticket.Priority != domain.TicketPriorityLow {
		t.Errorf("priority = %s, want low", ticket.Priority)
	}
	if ticket.ClosedAt != nil {
		t.Error("closed_at set on new ticket")
	}

	entries := env.history(t, ticket.ID)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Kind != domain.AuditKindCreated || entries[0].Message != "created" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].AuthorRole != domain.RoleOperator || entries[0].AuthorID != "u-op" {
		t.Errorf("author = %s/%s", entries[0].AuthorRole, entries[0].AuthorID)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		input NewTicket
	}{
		{"missing subject", NewTicket{OwnerID: "u-alice", Description: "d"}},
		{"blank description", NewTicket{OwnerID: "u-alice", Subject: "s", Description: "   "}},
		{"missing owner", NewTicket{Subject: "s", Description: "d"}},
		{"bad priority", NewTicket{OwnerID: "u-alice", Subject: "s", Description: "d", Priority: "urgent"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.tickets.CreateTicket(context.Background(), tc.input, operatorAuthor)
			assertCode(t, err, apperrors.CodeValidation)
		})
	}
	tickets, _ := env.tickets.List(context.Background(), repository.TicketFilter{})
	if len(tickets) != 0 {
		t.Fatalf("tickets = %d after rejected creates, want 0", len(tickets))
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    domain.TicketState
		to      domain.TicketState
		ok      bool
		entries int
	}{
		{domain.TicketStateOpen, domain.TicketStateInProgress, true, 2},
		{domain.TicketStateOpen, domain.TicketStateClosed, true, 2},
		{domain.TicketStateOpen, domain.TicketStateOpen, true, 1},
		{domain.TicketStateInProgress, domain.TicketStateClosed, true, 3},
		{domain.TicketStateInProgress, domain.TicketStateOpen, true, 3},
		{domain.TicketStateInProgress, domain.TicketStateInProgress, true, 2},
		{domain.TicketStateClosed, domain.TicketStateOpen, false, 2},
		{domain.TicketStateClosed, domain.TicketStateInProgress, false, 2},
		{domain.TicketStateClosed, domain.TicketStateClosed, false, 2},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			env := newTestEnv(t)
			ticket := newStoreTicket(t, env, tc.from)
			before := env.history(t, ticket.ID)

			got, entry, err := env.tickets.ChangeState(context.Background(), ticket.ID, tc.to, operatorAuthor)
			if !tc.ok {
				assertCode(t, err, apperrors.CodeInvalidTransition)
				stored, _ := env.tickets.Get(context.Background(), ticket.ID)
				if stored.State != tc.from {
					t.Fatalf("state = %s after rejection, want %s", stored.State, tc.from)
				}
			} else {
				if err != nil {
					t.Fatalf("ChangeState() error = %v", err)
				}
				if got.State != tc.to {
					t.Fatalf("state = %s, want %s", got.State, tc.to)
				}
				if (tc.from == tc.to) != (entry == nil) {
					t.Fatalf("entry = %v for %s->%s", entry, tc.from, tc.to)
				}
			}

			after := env.history(t, ticket.ID)
			if len(after) != tc.entries {
				t.Fatalf("entries = %d, want %d", len(after), tc.entries)
			}
			for i := range before {
				if after[i] != before[i] {
					t.Fatalf("entry %d changed: %+v -> %+v", i, before[i], after[i])
				}
			}
		})
	}
}

func TestChangeStateMessagesAndClosedAt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := newStoreTicket(t, env, domain.TicketStateOpen)

	env.clock.Advance(time.Minute)
	ticket, entry, err := env.tickets.ChangeState(ctx, ticket.ID, domain.TicketStateClosed, operatorAuthor)
	if err != nil {
		t.Fatalf("ChangeState() error = %v", err)
	}
	if entry.Message != "state: open → closed" || entry.OldValue != "open" || entry.NewValue != "closed" {
		t.Errorf("entry = %+v", entry)
	}
	if ticket.ClosedAt == nil || !ticket.ClosedAt.Equal(env.clock.Now()) {
		t.Errorf("closed_at = %v, want %v", ticket.ClosedAt, env.clock.Now())
	}
	if !ticket.UpdatedAt.After(ticket.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", ticket.UpdatedAt, ticket.CreatedAt)
	}
}

func TestChangePriority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := newStoreTicket(t, env, domain.TicketStateInProgress)

	ticket, entry, err := env.tickets.ChangePriority(ctx, ticket.ID, domain.TicketPriorityHigh, operatorAuthor)
	if err != nil {
		t.Fatalf("ChangePriority() error = %v", err)
	}
	if ticket.Priority != domain.TicketPriorityHigh || ticket.State != domain.TicketStateInProgress {
		t.Fatalf("ticket = %+v", ticket)
	}
	if entry.Kind != domain.AuditKindPriorityChange || entry.Message != "priority: low → high" {
		t.Errorf("entry = %+v", entry)
	}

	_, entry, err = env.tickets.ChangePriority(ctx, ticket.ID, domain.TicketPriorityHigh, operatorAuthor)
	if err != nil || entry != nil {
		t.Fatalf("same priority: entry = %v, err = %v", entry, err)
	}

	_, _, err = env.tickets.ChangePriority(ctx, ticket.ID, "critical", operatorAuthor)
	assertCode(t, err, apperrors.CodeValidation)

	if _, _, err := env.tickets.ChangeState(ctx, ticket.ID, domain.TicketStateClosed, operatorAuthor); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, _, err = env.tickets.ChangePriority(ctx, ticket.ID, domain.TicketPriorityLow, operatorAuthor)
	assertCode(t, err, apperrors.CodeInvalidTransition)

	if got := len(env.history(t, ticket.ID)); got != 4 {
		t.Fatalf("entries = %d, want 4", got)
	}
}

func TestChangeStateUnknownTicket(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.tickets.ChangeState(context.Background(), "missing", domain.TicketStateClosed, operatorAuthor)
	assertCode(t, err, apperrors.CodeNotFound)

	_, _, err = env.tickets.ChangeState(context.Background(), "missing", "done", operatorAuthor)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestConcurrentMutationsSerialize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := newStoreTicket(t, env, domain.TicketStateOpen)

	priorities := []domain.TicketPriority{domain.TicketPriorityHigh, domain.TicketPriorityMedium, domain.TicketPriorityLow}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				entry *domain.AuditEntry
				err   error
			)
			if i%2 == 0 {
				_, entry, err = env.tickets.ChangePriority(ctx, ticket.ID, priorities[i%3], operatorAuthor)
			} else {
				state := domain.TicketStateInProgress
				if i%3 == 0 {
					state = domain.TicketStateOpen
				}
				_, entry, err = env.tickets.ChangeState(ctx, ticket.ID, state, operatorAuthor)
			}
			if err != nil {
				t.Errorf("mutation %d: %v", i, err)
				return
			}
			if entry != nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	entries := env.history(t, ticket.ID)
	if len(entries) != accepted+1 {
		t.Fatalf("entries = %d, want %d", len(entries), accepted+1)
	}

	// Replaying the log must reproduce the stored ticket.
	state, priority := domain.TicketStateOpen, domain.TicketPriorityLow
	for i, entry := range entries[1:] {
		if entry.Seq <= entries[i].Seq {
			t.Fatalf("seq not increasing at %d", i+1)
		}
		switch entry.Kind {
		case domain.AuditKindStateChange:
			if entry.OldValue != string(state) {
				t.Fatalf("entry %d old state %s, replay has %s", i+1, entry.OldValue, state)
			}
			state = domain.TicketState(entry.NewValue)
		case domain.AuditKindPriorityChange:
			if entry.OldValue != string(priority) {
				t.Fatalf("entry %d old priority %s, replay has %s", i+1, entry.OldValue, priority)
			}
			priority = domain.TicketPriority(entry.NewValue)
		}
	}
	stored, err := env.tickets.Get(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.State != state || stored.Priority != priority {
		t.Fatalf("stored %s/%s, replayed %s/%s", stored.State, stored.Priority, state, priority)
	}
	if n := env.tickets.locks.size(); n != 0 {
		t.Fatalf("lock slots leaked: %d", n)
	}
}

func TestMutationCommitsAfterLockDespiteCancel(t *testing.T) {
	env := newTestEnv(t)
	ticket := newStoreTicket(t, env, domain.TicketStateOpen)

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := env.tickets.mutate(ctx, ticket.ID, func(tk *domain.Ticket, _ time.Time) (*AuditRecord, error) {
		cancel()
		tk.State = domain.TicketStateInProgress
		return &AuditRecord{Kind: domain.AuditKindStateChange, Message: "state: open → in_progress", OldValue: "open", NewValue: "in_progress"}, nil
	}, operatorAuthor)
	if err != nil {
		t.Fatalf("mutate() error = %v", err)
	}
	if got := len(env.history(t, ticket.ID)); got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}
}

func TestMutationWaitingOnLockHonoursContext(t *testing.T) {
	env := newTestEnv(t)
	ticket := newStoreTicket(t, env, domain.TicketStateOpen)

	unlock, err := env.tickets.locks.Lock(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = env.tickets.ChangeState(ctx, ticket.ID, domain.TicketStateClosed, operatorAuthor)
	if err == nil {
		t.Fatal("ChangeState() succeeded while the ticket was locked")
	}
	if got := len(env.history(t, ticket.ID)); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}
