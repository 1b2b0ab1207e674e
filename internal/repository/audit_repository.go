package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
)

type auditRepository struct {
	q querier
}

const auditColumns = `id, ticket_id, seq, kind, author_role, author_id, message, old_value, new_value, created_at`

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_entries (id, ticket_id, kind, author_role, author_id, message, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.Kind,
		entry.AuthorRole,
		entry.AuthorID,
		entry.Message,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	).Scan(&entry.Seq)
	return translateError(err)
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.AuditEntry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func (r *auditRepository) Latest(ctx context.Context, ticketID string) (*domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE ticket_id=$1 ORDER BY created_at DESC, seq DESC LIMIT 1`
	entry, err := scanAuditEntry(r.q.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, translateError(err)
	}
	return entry, nil
}

func scanAuditEntry(row pgx.Row) (*domain.AuditEntry, error) {
	var entry domain.AuditEntry
	if err := row.Scan(
		&entry.ID,
		&entry.TicketID,
		&entry.Seq,
		&entry.Kind,
		&entry.AuthorRole,
		&entry.AuthorID,
		&entry.Message,
		&entry.OldValue,
		&entry.NewValue,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
