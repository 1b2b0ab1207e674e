package domain

import "time"

// AuditKind captures what an audit entry records.
type AuditKind string

const (
	AuditKindCreated        AuditKind = "created"
	AuditKindStateChange    AuditKind = "state_change"
	AuditKindPriorityChange AuditKind = "priority_change"
)

// AuditAuthor identifies who caused a change.
type AuditAuthor struct {
	Role Role
	ID   string
}

// AuditEntry is an immutable record of one accepted change to a ticket.
type AuditEntry struct {
	ID         string
	TicketID   string
	Seq        int64
	Kind       AuditKind
	AuthorRole Role
	AuthorID   string
	Message    string
	OldValue   string
	NewValue   string
	CreatedAt  time.Time
}
