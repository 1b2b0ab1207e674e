package dto

import (
	"time"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
)

// CreateTicketRequest payload. Exactly one of OwnerID and ClientEmail names the owner.
type CreateTicketRequest struct {
	OwnerID     string `json:"ownerId"`
	ClientEmail string `json:"clientEmail"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// TicketResponse is the authoritative ticket returned by every ticket endpoint.
type TicketResponse struct {
	ID          string                `json:"id"`
	OwnerID     string                `json:"ownerId"`
	CreatedBy   string                `json:"createdBy"`
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	State       domain.TicketState    `json:"state"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
	ClosedAt    *time.Time            `json:"closedAt"`
}

// AuditEntryResponse is one line of a ticket's history.
type AuditEntryResponse struct {
	ID         string           `json:"id"`
	TicketID   string           `json:"ticketId"`
	Seq        int64            `json:"seq"`
	Kind       domain.AuditKind `json:"kind"`
	AuthorRole domain.Role      `json:"authorRole"`
	AuthorID   string           `json:"authorId"`
	Message    string           `json:"message"`
	OldValue   string           `json:"oldValue,omitempty"`
	NewValue   string           `json:"newValue,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// TicketStatsResponse counts visible tickets per state.
type TicketStatsResponse struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"inProgress"`
	Closed     int `json:"closed"`
}

// Pagination echoes the paging window of a listing.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Count    int `json:"count"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          ticket.ID,
		OwnerID:     ticket.OwnerID,
		CreatedBy:   ticket.CreatedBy,
		Subject:     ticket.Subject,
		Description: ticket.Description,
		State:       ticket.State,
		Priority:    ticket.Priority,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}

// NewAuditEntryResponse maps an audit entry.
func NewAuditEntryResponse(entry *domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         entry.ID,
		TicketID:   entry.TicketID,
		Seq:        entry.Seq,
		Kind:       entry.Kind,
		AuthorRole: entry.AuthorRole,
		AuthorID:   entry.AuthorID,
		Message:    entry.Message,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		Timestamp:  entry.CreatedAt,
	}
}
