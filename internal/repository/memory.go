package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
)

// MemoryStore keeps every record in process memory. Transactions stage their
// writes and publish them under a single write lock on commit, so readers see
// a ticket change and its audit entry together or not at all.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	order   []string
	entries map[string][]domain.AuditEntry
	users   map[string]domain.User
	emails  map[string]string
	seq     int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]domain.Ticket),
		entries: make(map[string][]domain.AuditEntry),
		users:   make(map[string]domain.User),
		emails:  make(map[string]string),
	}
}

func (s *MemoryStore) Tickets() TicketRepository { return &memTicketRepo{store: s} }
func (s *MemoryStore) Audit() AuditRepository    { return &memAuditRepo{store: s} }
func (s *MemoryStore) Users() UserRepository     { return &memUserRepo{store: s} }

// InTx stages writes made by fn and commits them atomically when fn succeeds.
func (s *MemoryStore) InTx(_ context.Context, fn func(tx Store) error) error {
	tx := &memTx{store: s, tickets: make(map[string]domain.Ticket)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	if tx.empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range tx.users {
		if _, taken := s.emails[emailKey(user.Email)]; taken {
			return ErrDuplicate
		}
		if _, taken := s.users[user.ID]; taken {
			return ErrDuplicate
		}
	}
	for _, id := range tx.created {
		if _, taken := s.tickets[id]; taken {
			return ErrDuplicate
		}
	}

	for _, user := range tx.users {
		s.users[user.ID] = *user
		s.emails[emailKey(user.Email)] = user.ID
	}
	for id, ticket := range tx.tickets {
		s.tickets[id] = cloneTicket(ticket)
	}
	s.order = append(s.order, tx.created...)
	for _, entry := range tx.entries {
		s.seq++
		entry.Seq = s.seq
		s.entries[entry.TicketID] = append(s.entries[entry.TicketID], *entry)
	}
	return nil
}

type memTx struct {
	store   *MemoryStore
	tickets map[string]domain.Ticket
	created []string
	entries []*domain.AuditEntry
	users   []*domain.User
}

func (tx *memTx) Tickets() TicketRepository { return &memTicketRepo{store: tx.store, tx: tx} }
func (tx *memTx) Audit() AuditRepository    { return &memAuditRepo{store: tx.store, tx: tx} }
func (tx *memTx) Users() UserRepository     { return &memUserRepo{store: tx.store, tx: tx} }

// InTx on an open transaction joins it.
func (tx *memTx) InTx(_ context.Context, fn func(tx Store) error) error {
	return fn(tx)
}

func (tx *memTx) empty() bool {
	return len(tx.tickets) == 0 && len(tx.entries) == 0 && len(tx.users) == 0
}

type memTicketRepo struct {
	store *MemoryStore
	tx    *memTx
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if r.tx == nil {
		return r.store.InTx(ctx, func(tx Store) error { return tx.Tickets().Create(ctx, ticket) })
	}
	if _, err := r.lookup(ticket.ID); err == nil {
		return ErrDuplicate
	}
	r.tx.tickets[ticket.ID] = cloneTicket(*ticket)
	r.tx.created = append(r.tx.created, ticket.ID)
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if r.tx == nil {
		return r.store.InTx(ctx, func(tx Store) error { return tx.Tickets().Update(ctx, ticket) })
	}
	if _, err := r.lookup(ticket.ID); err != nil {
		return err
	}
	r.tx.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *memTicketRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memTicketRepo) lookup(id string) (domain.Ticket, error) {
	if r.tx != nil {
		if ticket, ok := r.tx.tickets[id]; ok {
			return cloneTicket(ticket), nil
		}
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ticket, ok := r.store.tickets[id]
	if !ok {
		return domain.Ticket{}, ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (r *memTicketRepo) snapshot() []domain.Ticket {
	r.store.mu.RLock()
	ids := append([]string(nil), r.store.order...)
	result := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		result = append(result, cloneTicket(r.store.tickets[id]))
	}
	r.store.mu.RUnlock()

	if r.tx == nil {
		return result
	}
	for i := range result {
		if staged, ok := r.tx.tickets[result[i].ID]; ok {
			result[i] = cloneTicket(staged)
		}
	}
	for _, id := range r.tx.created {
		result = append(result, cloneTicket(r.tx.tickets[id]))
	}
	return result
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	skipped := 0
	for _, ticket := range r.snapshot() {
		if !filter.Matches(&ticket) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, ticket)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (r *memTicketRepo) CountByState(_ context.Context, filter TicketFilter) (map[domain.TicketState]int, error) {
	counts := make(map[domain.TicketState]int, len(domain.TicketStates))
	for _, ticket := range r.snapshot() {
		if filter.Matches(&ticket) {
			counts[ticket.State]++
		}
	}
	return counts, nil
}

type memAuditRepo struct {
	store *MemoryStore
	tx    *memTx
}

func (r *memAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if r.tx == nil {
		return r.store.InTx(ctx, func(tx Store) error { return tx.Audit().Append(ctx, entry) })
	}
	tickets := &memTicketRepo{store: r.store, tx: r.tx}
	if _, err := tickets.lookup(entry.TicketID); err != nil {
		return err
	}
	r.tx.entries = append(r.tx.entries, entry)
	return nil
}

func (r *memAuditRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditEntry, error) {
	r.store.mu.RLock()
	result := append([]domain.AuditEntry{}, r.store.entries[ticketID]...)
	r.store.mu.RUnlock()
	if r.tx != nil {
		for _, entry := range r.tx.entries {
			if entry.TicketID == ticketID {
				result = append(result, *entry)
			}
		}
	}
	return result, nil
}

func (r *memAuditRepo) Latest(ctx context.Context, ticketID string) (*domain.AuditEntry, error) {
	entries, err := r.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	latest := entries[len(entries)-1]
	return &latest, nil
}

type memUserRepo struct {
	store *MemoryStore
	tx    *memTx
}

func (r *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	if r.tx == nil {
		return r.store.InTx(ctx, func(tx Store) error { return tx.Users().Create(ctx, user) })
	}
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return ErrDuplicate
	}
	staged := *user
	r.tx.users = append(r.tx.users, &staged)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if r.tx != nil {
		for _, user := range r.tx.users {
			if user.ID == id {
				found := *user
				return &found, nil
			}
		}
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	user, ok := r.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	key := emailKey(email)
	if r.tx != nil {
		for _, user := range r.tx.users {
			if emailKey(user.Email) == key {
				found := *user
				return &found, nil
			}
		}
	}
	r.store.mu.RLock()
	id, ok := r.store.emails[key]
	r.store.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneTicket(ticket domain.Ticket) domain.Ticket {
	if ticket.ClosedAt != nil {
		closedAt := *ticket.ClosedAt
		ticket.ClosedAt = &closedAt
	}
	return ticket
}
