package repository

import (
	"context"
	"errors"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
)

// TicketFilter narrows ticket listings. Nil fields match everything.
type TicketFilter struct {
	OwnerID  *string
	State    *domain.TicketState
	Priority *domain.TicketPriority
	Limit    int
	Offset   int
}

// Matches reports whether the ticket satisfies every set field.
func (f TicketFilter) Matches(ticket *domain.Ticket) bool {
	if f.OwnerID != nil && ticket.OwnerID != *f.OwnerID {
		return false
	}
	if f.State != nil && ticket.State != *f.State {
		return false
	}
	if f.Priority != nil && ticket.Priority != *f.Priority {
		return false
	}
	return true
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate reads a ticket and, where the backend supports it, locks it
	// until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByState(ctx context.Context, filter TicketFilter) (map[domain.TicketState]int, error)
}

// AuditRepository stores audit entries. It never updates or deletes.
type AuditRepository interface {
	// Append persists the entry and assigns its Seq.
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error)
	Latest(ctx context.Context, ticketID string) (*domain.AuditEntry, error)
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Store groups the repositories behind one transactional boundary.
type Store interface {
	Tickets() TicketRepository
	Audit() AuditRepository
	Users() UserRepository
	// InTx runs fn against a transactional view. Writes made through tx become
	// visible to other readers together, and only if fn returns nil.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
