package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen       TicketState = "open"
	TicketStateInProgress TicketState = "in_progress"
	TicketStateClosed     TicketState = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// TicketStates lists every state in lifecycle order.
var TicketStates = []TicketState{TicketStateOpen, TicketStateInProgress, TicketStateClosed}

// TicketPriorities lists every priority from lowest to highest.
var TicketPriorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh}

// Valid reports whether s is a known state.
func (s TicketState) Valid() bool {
	switch s {
	case TicketStateOpen, TicketStateInProgress, TicketStateClosed:
		return true
	}
	return false
}

// Terminal reports whether no further mutation is allowed from s.
func (s TicketState) Terminal() bool {
	return s == TicketStateClosed
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	OwnerID     string
	CreatedBy   string
	Subject     string
	Description string
	State       TicketState
	Priority    TicketPriority
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

var allowedTransitions = map[TicketState][]TicketState{
	TicketStateOpen:       {TicketStateInProgress, TicketStateClosed},
	TicketStateInProgress: {TicketStateClosed, TicketStateOpen},
	TicketStateClosed:     {},
}

// CanTransition reports whether a ticket may move from current to next.
// Same-state moves are allowed as no-ops unless current is terminal.
func CanTransition(current, next TicketState) bool {
	if current.Terminal() {
		return false
	}
	if current == next {
		return true
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
