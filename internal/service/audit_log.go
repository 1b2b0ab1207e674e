package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
)

// AuditRecord describes one change to be appended.
type AuditRecord struct {
	TicketID string
	Author   domain.AuditAuthor
	Kind     domain.AuditKind
	Message  string
	OldValue string
	NewValue string
}

// AuditLog is the append-only change history of every ticket.
type AuditLog struct {
	store repository.Store
	now   func() time.Time
}

// NewAuditLog builds the log. clock may be nil.
func NewAuditLog(store repository.Store, clock func() time.Time) *AuditLog {
	if clock == nil {
		clock = time.Now
	}
	return &AuditLog{store: store, now: clock}
}

// Append writes rec through tx so it commits together with the ticket change
// it describes. The timestamp never goes below the ticket's previous entry.
func (l *AuditLog) Append(ctx context.Context, tx repository.Store, rec AuditRecord) (*domain.AuditEntry, error) {
	createdAt := l.now().UTC().Truncate(time.Microsecond)

	latest, err := tx.Audit().Latest(ctx, rec.TicketID)
	switch {
	case err == nil:
		if createdAt.Before(latest.CreatedAt) {
			createdAt = latest.CreatedAt
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("read latest audit entry: %w", err)
	}

	entry := &domain.AuditEntry{
		ID:         uuid.NewString(),
		TicketID:   rec.TicketID,
		Kind:       rec.Kind,
		AuthorRole: rec.Author.Role,
		AuthorID:   rec.Author.ID,
		Message:    rec.Message,
		OldValue:   rec.OldValue,
		NewValue:   rec.NewValue,
		CreatedAt:  createdAt,
	}
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, nil
}

// History returns the ticket's entries in append order.
func (l *AuditLog) History(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	entries, err := l.store.Audit().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
