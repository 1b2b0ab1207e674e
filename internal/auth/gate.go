package auth

import (
	"fmt"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

// Operation names an action a caller asks to perform.
type Operation string

const (
	OpCreateTicket   Operation = "create_ticket"
	OpListTickets    Operation = "list_tickets"
	OpViewTicket     Operation = "view_ticket"
	OpChangeState    Operation = "change_state"
	OpChangePriority Operation = "change_priority"
	OpViewHistory    Operation = "view_history"
	OpViewStats      Operation = "view_stats"
	OpCreateUser     Operation = "create_user"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow grants the request.
func Allow() Decision { return Decision{Allowed: true} }

// Deny rejects the request with a reason meant for the caller.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into a FORBIDDEN error; allowed decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperrors.NewForbidden(d.Reason)
}

type clientAccess int

const (
	clientDenied clientAccess = iota
	// clientOwnerOnly allows a client only for tickets it owns.
	clientOwnerOnly
	// clientScoped allows a client, with results restricted by VisibilityScope.
	clientScoped
)

type rule struct {
	operator bool
	client   clientAccess
}

var policy = map[Operation]rule{
	OpCreateTicket:   {operator: true, client: clientDenied},
	OpListTickets:    {operator: true, client: clientScoped},
	OpViewTicket:     {operator: true, client: clientOwnerOnly},
	OpChangeState:    {operator: true, client: clientDenied},
	OpChangePriority: {operator: true, client: clientDenied},
	OpViewHistory:    {operator: true, client: clientOwnerOnly},
	OpViewStats:      {operator: true, client: clientScoped},
	OpCreateUser:     {operator: false, client: clientDenied},
}

// Gate centralizes the role policy. Role is the only input besides ownership.
type Gate struct{}

// NewGate builds a gate.
func NewGate() *Gate {
	return &Gate{}
}

// Authorize decides whether role may perform op. ownerID is the owner of the
// targeted ticket and may be empty for operations without a target.
func (g *Gate) Authorize(role domain.Role, op Operation, ownerID, actorID string) Decision {
	r, known := policy[op]
	if !known {
		return Deny(fmt.Sprintf("unknown operation %q", op))
	}

	switch role {
	case domain.RoleAdmin:
		return Allow()
	case domain.RoleOperator:
		if r.operator {
			return Allow()
		}
		return Deny(fmt.Sprintf("role %s may not %s", role, op))
	case domain.RoleClient:
		switch r.client {
		case clientScoped:
			return Allow()
		case clientOwnerOnly:
			if actorID != "" && ownerID == actorID {
				return Allow()
			}
			return Deny("ticket is not owned by caller")
		default:
			return Deny(fmt.Sprintf("role %s may not %s", role, op))
		}
	default:
		return Deny(fmt.Sprintf("unknown role %q", role))
	}
}

// VisibilityScope returns the owner restriction every listing for this caller
// must carry. Nil means the caller sees all tickets.
func (g *Gate) VisibilityScope(role domain.Role, actorID string) *string {
	if role.Staff() {
		return nil
	}
	owner := actorID
	return &owner
}
