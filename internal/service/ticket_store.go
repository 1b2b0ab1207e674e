package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-labs/ticket-tracker/internal/cache"
	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

// NewTicket carries the fields of a ticket about to be filed.
type NewTicket struct {
	OwnerID     string
	CreatedBy   string
	Subject     string
	Description string
	Priority    domain.TicketPriority
}

// TicketStore is the single writer of tickets. It enforces the lifecycle and
// commits every accepted change together with its audit entry.
type TicketStore struct {
	store repository.Store
	audit *AuditLog
	cache cache.Cache
	locks *keyedMutex
	now   func() time.Time
}

// NewTicketStore builds the store. cache and clock may be nil.
func NewTicketStore(store repository.Store, audit *AuditLog, c cache.Cache, clock func() time.Time) *TicketStore {
	if c == nil {
		c = cache.Noop{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &TicketStore{store: store, audit: audit, cache: c, locks: newKeyedMutex(), now: clock}
}

func (s *TicketStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateTicket files a ticket in state open and records the "created" entry.
func (s *TicketStore) CreateTicket(ctx context.Context, input NewTicket, author domain.AuditAuthor) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	missing := []string{}
	if strings.TrimSpace(input.OwnerID) == "" {
		missing = append(missing, "ownerId")
	}
	if subject == "" {
		missing = append(missing, "subject")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityLow
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	now := s.timestamp()
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		OwnerID:     input.OwnerID,
		CreatedBy:   input.CreatedBy,
		Subject:     subject,
		Description: description,
		State:       domain.TicketStateOpen,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx = context.WithoutCancel(ctx)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		_, err := s.audit.Append(ctx, tx, AuditRecord{
			TicketID: ticket.ID,
			Author:   author,
			Kind:     domain.AuditKindCreated,
			Message:  "created",
			NewValue: string(ticket.State),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.SetTicket(ctx, ticket)
	return ticket, nil
}

// ChangeState moves a ticket along the lifecycle. The returned entry is nil
// when the ticket already was in the requested state.
func (s *TicketStore) ChangeState(ctx context.Context, id string, next domain.TicketState, author domain.AuditAuthor) (*domain.Ticket, *domain.AuditEntry, error) {
	if !next.Valid() {
		return nil, nil, apperrors.NewValidationError("invalid state", map[string]any{"state": next})
	}
	return s.mutate(ctx, id, func(ticket *domain.Ticket, now time.Time) (*AuditRecord, error) {
		current := ticket.State
		if current.Terminal() {
			return nil, terminalError(ticket, "state", string(next))
		}
		if current == next {
			return nil, nil
		}
		if !domain.CanTransition(current, next) {
			return nil, apperrors.NewInvalidTransition(
				fmt.Sprintf("cannot move ticket from %s to %s", current, next),
				map[string]any{"ticket_id": ticket.ID, "from": current, "to": next},
			)
		}

		ticket.State = next
		if next == domain.TicketStateClosed {
			ticket.ClosedAt = &now
		} else {
			ticket.ClosedAt = nil
		}
		return &AuditRecord{
			Kind:     domain.AuditKindStateChange,
			Message:  fmt.Sprintf("state: %s → %s", current, next),
			OldValue: string(current),
			NewValue: string(next),
		}, nil
	}, author)
}

// ChangePriority sets a new priority on a non-terminal ticket. The returned
// entry is nil when the priority did not change.
func (s *TicketStore) ChangePriority(ctx context.Context, id string, next domain.TicketPriority, author domain.AuditAuthor) (*domain.Ticket, *domain.AuditEntry, error) {
	if !next.Valid() {
		return nil, nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": next})
	}
	return s.mutate(ctx, id, func(ticket *domain.Ticket, _ time.Time) (*AuditRecord, error) {
		if ticket.State.Terminal() {
			return nil, terminalError(ticket, "priority", string(next))
		}
		current := ticket.Priority
		if current == next {
			return nil, nil
		}
		ticket.Priority = next
		return &AuditRecord{
			Kind:     domain.AuditKindPriorityChange,
			Message:  fmt.Sprintf("priority: %s → %s", current, next),
			OldValue: string(current),
			NewValue: string(next),
		}, nil
	}, author)
}

// Get returns the current ticket.
func (s *TicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if ticket, ok := s.cache.GetTicket(ctx, id); ok {
		return ticket, nil
	}
	ticket, err := s.store.Tickets().GetByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, id)
	}
	return ticket, nil
}

// List returns tickets matching every set filter field.
func (s *TicketStore) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().ListWithFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// CountByState tallies matching tickets per state.
func (s *TicketStore) CountByState(ctx context.Context, filter repository.TicketFilter) (map[domain.TicketState]int, error) {
	counts, err := s.store.Tickets().CountByState(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	return counts, nil
}

type mutation func(ticket *domain.Ticket, now time.Time) (*AuditRecord, error)

// mutate serializes on the ticket id, applies fn and commits the ticket with
// its audit entry. Once the lock is held the commit no longer observes ctx
// cancellation, so a caller that times out still gets an audited change.
func (s *TicketStore) mutate(ctx context.Context, id string, fn mutation, author domain.AuditAuthor) (*domain.Ticket, *domain.AuditEntry, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	var (
		result *domain.Ticket
		entry  *domain.AuditEntry
	)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		ticket, err := tx.Tickets().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.timestamp()
		rec, err := fn(ticket, now)
		if err != nil {
			return err
		}
		result = ticket
		if rec == nil {
			return nil
		}

		ticket.UpdatedAt = now
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		rec.TicketID = ticket.ID
		rec.Author = author
		entry, err = s.audit.Append(ctx, tx, *rec)
		if err != nil {
			return err
		}
		// Readers fall back to the store until the new version is cached.
		s.cache.InvalidateTicket(ctx, ticket.ID)
		return nil
	})
	if err != nil {
		return nil, nil, translateStoreError(err, id)
	}
	if entry != nil {
		s.cache.SetTicket(ctx, result)
	}
	return result, entry, nil
}

func terminalError(ticket *domain.Ticket, field, requested string) error {
	return apperrors.NewInvalidTransition(
		fmt.Sprintf("ticket is %s; %s can no longer change", ticket.State, field),
		map[string]any{"ticket_id": ticket.ID, "state": ticket.State, "requested_" + field: requested},
	)
}

func translateStoreError(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return err
}
