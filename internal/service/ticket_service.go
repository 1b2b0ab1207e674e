package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-tracker/internal/auth"
	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	"github.com/helpdesk-labs/ticket-tracker/internal/events"
	"github.com/helpdesk-labs/ticket-tracker/internal/observability"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows on behalf of an authenticated caller.
type TicketService struct {
	gate       *auth.Gate
	tickets    *TicketStore
	audit      *AuditLog
	users      repository.UserRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Gate       *auth.Gate
	Store      *TicketStore
	Audit      *AuditLog
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// CreateTicketInput describes a ticket filed by staff. The owner is given
// either by id or by the client's email.
type CreateTicketInput struct {
	OwnerID     string
	ClientEmail string
	Subject     string
	Description string
	Priority    string
}

// ListFilter holds raw listing parameters. Empty values match everything.
type ListFilter struct {
	State    string
	Priority string
	OwnerID  string
	Role     string
	Limit    int
	Offset   int
}

// Dashboard summarizes the tickets visible to the caller.
type Dashboard struct {
	Total      int
	Open       int
	InProgress int
	Closed     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate()
	}
	return &TicketService{
		gate:       gate,
		tickets:    deps.Store,
		audit:      deps.Audit,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// CreateTicket files a ticket for a client account.
func (s *TicketService) CreateTicket(ctx context.Context, principal *domain.Principal, input CreateTicketInput) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if err := s.gate.Authorize(principal.Role, auth.OpCreateTicket, "", principal.ActorID).Err(); err != nil {
		s.metrics.RecordMutation("create", "denied")
		return nil, err
	}

	priority, err := parseOptionalPriority(input.Priority)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Subject) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, apperrors.NewValidationError("subject and description are required", nil)
	}

	owner, err := s.resolveOwner(ctx, input)
	if err != nil {
		return nil, err
	}

	var p domain.TicketPriority
	if priority != nil {
		p = *priority
	}
	ticket, err := s.tickets.CreateTicket(ctx, NewTicket{
		OwnerID:     owner.ID,
		CreatedBy:   principal.ActorID,
		Subject:     input.Subject,
		Description: input.Description,
		Priority:    p,
	}, authorOf(principal))
	if err != nil {
		s.metrics.RecordMutation("create", "failed")
		return nil, err
	}
	s.metrics.RecordMutation("create", "accepted")

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(principal),
		Payload: events.TicketCreatedPayload{
			OwnerID:  ticket.OwnerID,
			Priority: ticket.Priority,
			Subject:  ticket.Subject,
		},
	})
	return ticket, nil
}

// ListTickets returns the tickets visible to the caller that match filter.
func (s *TicketService) ListTickets(ctx context.Context, principal *domain.Principal, filter ListFilter) ([]domain.Ticket, error) {
	repoFilter, err := s.scopedFilter(principal, auth.OpListTickets, filter)
	if err != nil {
		return nil, err
	}
	return s.tickets.List(ctx, repoFilter)
}

// GetTicket returns a single ticket. Tickets the caller may not see are
// reported as missing.
func (s *TicketService) GetTicket(ctx context.Context, principal *domain.Principal, id string) (*domain.Ticket, error) {
	return s.visibleTicket(ctx, principal, auth.OpViewTicket, id)
}

// ChangeState moves a ticket to the state named by rawState.
func (s *TicketService) ChangeState(ctx context.Context, principal *domain.Principal, id, rawState string) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	// Staff-only operation; ownership does not matter.
	if err := s.gate.Authorize(principal.Role, auth.OpChangeState, "", principal.ActorID).Err(); err != nil {
		s.metrics.RecordMutation("state", "denied")
		return nil, err
	}
	next, err := parseState(rawState)
	if err != nil {
		return nil, err
	}

	ticket, entry, err := s.tickets.ChangeState(ctx, id, next, authorOf(principal))
	if err != nil {
		s.metrics.RecordMutation("state", outcomeOf(err))
		return nil, err
	}
	if entry == nil {
		s.metrics.RecordMutation("state", "noop")
		return ticket, nil
	}
	s.metrics.RecordMutation("state", "accepted")

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketStateChanged,
		TicketID:  ticket.ID,
		Actor:     actorOf(principal),
		Timestamp: entry.CreatedAt,
		Payload: events.TicketStateChangedPayload{
			OldState: domain.TicketState(entry.OldValue),
			NewState: ticket.State,
		},
	})
	return ticket, nil
}

// ChangePriority sets the priority named by rawPriority.
func (s *TicketService) ChangePriority(ctx context.Context, principal *domain.Principal, id, rawPriority string) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if err := s.gate.Authorize(principal.Role, auth.OpChangePriority, "", principal.ActorID).Err(); err != nil {
		s.metrics.RecordMutation("priority", "denied")
		return nil, err
	}
	next, err := parsePriority(rawPriority)
	if err != nil {
		return nil, err
	}

	ticket, entry, err := s.tickets.ChangePriority(ctx, id, next, authorOf(principal))
	if err != nil {
		s.metrics.RecordMutation("priority", outcomeOf(err))
		return nil, err
	}
	if entry == nil {
		s.metrics.RecordMutation("priority", "noop")
		return ticket, nil
	}
	s.metrics.RecordMutation("priority", "accepted")

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketPriorityChanged,
		TicketID:  ticket.ID,
		Actor:     actorOf(principal),
		Timestamp: entry.CreatedAt,
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: domain.TicketPriority(entry.OldValue),
			NewPriority: ticket.Priority,
		},
	})
	return ticket, nil
}

// History returns the ticket's audit entries in append order.
func (s *TicketService) History(ctx context.Context, principal *domain.Principal, id string) ([]domain.AuditEntry, error) {
	ticket, err := s.visibleTicket(ctx, principal, auth.OpViewHistory, id)
	if err != nil {
		return nil, err
	}
	return s.audit.History(ctx, ticket.ID)
}

// Dashboard counts the visible tickets per state. Counts are recomputed on
// every call so they always agree with ListTickets.
func (s *TicketService) Dashboard(ctx context.Context, principal *domain.Principal, filter ListFilter) (*Dashboard, error) {
	repoFilter, err := s.scopedFilter(principal, auth.OpViewStats, filter)
	if err != nil {
		return nil, err
	}
	counts, err := s.tickets.CountByState(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	board := &Dashboard{
		Open:       counts[domain.TicketStateOpen],
		InProgress: counts[domain.TicketStateInProgress],
		Closed:     counts[domain.TicketStateClosed],
	}
	board.Total = board.Open + board.InProgress + board.Closed
	return board, nil
}

func (s *TicketService) visibleTicket(ctx context.Context, principal *domain.Principal, op auth.Operation, id string) (*domain.Ticket, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !principal.Role.Valid() {
		return nil, apperrors.NewForbidden("unknown role")
	}
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	decision := s.gate.Authorize(principal.Role, op, ticket.OwnerID, principal.ActorID)
	if decision.Allowed {
		return ticket, nil
	}
	if principal.Role == domain.RoleClient {
		// Clients must not learn that other clients' tickets exist.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return nil, decision.Err()
}

// scopedFilter applies the caller's visibility before any explicit filter.
func (s *TicketService) scopedFilter(principal *domain.Principal, op auth.Operation, filter ListFilter) (repository.TicketFilter, error) {
	var out repository.TicketFilter
	if principal == nil {
		return out, apperrors.NewUnauthorized("authentication required")
	}
	if err := s.gate.Authorize(principal.Role, op, "", principal.ActorID).Err(); err != nil {
		return out, err
	}
	if role := strings.TrimSpace(filter.Role); role != "" && domain.Role(strings.ToLower(role)) != principal.Role {
		return out, apperrors.NewForbidden("role parameter does not match caller")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return out, apperrors.NewValidationError("limit and offset must not be negative", nil)
	}

	if scope := s.gate.VisibilityScope(principal.Role, principal.ActorID); scope != nil {
		out.OwnerID = scope
	} else if owner := strings.TrimSpace(filter.OwnerID); owner != "" {
		out.OwnerID = &owner
	}

	state, err := parseOptionalState(filter.State)
	if err != nil {
		return out, err
	}
	priority, err := parseOptionalPriority(filter.Priority)
	if err != nil {
		return out, err
	}
	out.State = state
	out.Priority = priority
	out.Limit = filter.Limit
	out.Offset = filter.Offset
	return out, nil
}

func (s *TicketService) resolveOwner(ctx context.Context, input CreateTicketInput) (*domain.User, error) {
	var (
		owner *domain.User
		err   error
	)
	switch {
	case strings.TrimSpace(input.OwnerID) != "":
		owner, err = s.users.GetByID(ctx, strings.TrimSpace(input.OwnerID))
	case strings.TrimSpace(input.ClientEmail) != "":
		owner, err = s.users.GetByEmail(ctx, strings.TrimSpace(input.ClientEmail))
	default:
		return nil, apperrors.NewValidationError("ownerId or clientEmail is required", nil)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, err
	}
	if owner.Role != domain.RoleClient {
		return nil, apperrors.NewValidationError("ticket owner must be a client", map[string]any{"owner_id": owner.ID})
	}
	return owner, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	// The change is already committed; subscribers are best effort.
	if err := s.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func authorOf(principal *domain.Principal) domain.AuditAuthor {
	return domain.AuditAuthor{Role: principal.Role, ID: principal.ActorID}
}

func actorOf(principal *domain.Principal) events.Actor {
	return events.Actor{Role: principal.Role, ID: principal.ActorID}
}

func outcomeOf(err error) string {
	if apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		return "rejected"
	}
	return "failed"
}

func parseState(raw string) (domain.TicketState, error) {
	state := domain.TicketState(strings.ToLower(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", apperrors.NewValidationError("invalid state", map[string]any{"state": raw, "allowed": domain.TicketStates})
	}
	return state, nil
}

func parsePriority(raw string) (domain.TicketPriority, error) {
	priority := domain.TicketPriority(strings.ToLower(strings.TrimSpace(raw)))
	if !priority.Valid() {
		return "", apperrors.NewValidationError("invalid priority", map[string]any{"priority": raw, "allowed": domain.TicketPriorities})
	}
	return priority, nil
}

func parseOptionalState(raw string) (*domain.TicketState, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	state, err := parseState(raw)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func parseOptionalPriority(raw string) (*domain.TicketPriority, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	priority, err := parsePriority(raw)
	if err != nil {
		return nil, err
	}
	return &priority, nil
}
