package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpdesk/internal/db"

	"github.com/google/uuid"
)

const selectColumns = `id, customer_id, customer_name, subject, description, status, priority,
		user_id, scheduled_at, created_at, updated_at`

type Repository struct {
	db  *db.DB
	now func() time.Time
}

func NewRepository(db *db.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*Ticket, error) {
	var (
		t           Ticket
		userID      sql.NullString
		scheduledAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.CustomerID, &t.CustomerName, &t.Subject, &t.Description, &t.Status, &t.Priority,
		&userID, &scheduledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		t.UserID = &userID.String
	}
	if scheduledAt.Valid {
		t.ScheduledAt = &scheduledAt.Time
	}
	return &t, nil
}

// List returns up to PageSize tickets created strictly before the cursor,
// newest first. A nil cursor starts from the newest ticket.
func (r *Repository) List(ctx context.Context, before *time.Time) (Page, error) {
	query := `SELECT ` + selectColumns + ` FROM tickets`
	args := []any{}
	if before != nil {
		query += ` WHERE created_at < $1`
		args = append(args, *before)
	}
	// one extra row tells whether another page exists
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, PageSize+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("tickets: list: %w", err)
	}
	defer rows.Close()

	list := make([]Ticket, 0, PageSize+1)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return Page{}, fmt.Errorf("tickets: scan: %w", err)
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("tickets: list: %w", err)
	}

	page := Page{Tickets: list}
	if len(list) > PageSize {
		page.Tickets = list[:PageSize]
		page.HasMore = true
	}
	if n := len(page.Tickets); n > 0 {
		cursor := page.Tickets[n-1].CreatedAt
		page.NextCursor = &cursor
	}
	return page, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	t, err := scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM tickets WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tickets: get: %w", err)
	}
	return t, nil
}

func (r *Repository) customerName(ctx context.Context, customerID string) (string, error) {
	if _, err := uuid.Parse(customerID); err != nil {
		return "", ErrCustomerNotFound
	}

	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT fantasy_name FROM customers WHERE id = $1`, customerID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("tickets: customer lookup: %w", err)
	}
	return name, nil
}

// Create opens a ticket attributed to userID.
func (r *Repository) Create(ctx context.Context, userID string, in Input) (*Ticket, error) {
	in, err := in.normalize(r.now())
	if err != nil {
		return nil, err
	}

	name, err := r.customerName(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	t, err := scanTicket(r.db.QueryRowContext(ctx, `
		INSERT INTO tickets (id, customer_id, customer_name, subject, description, status, priority, user_id, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+selectColumns,
		uuid.NewString(), in.CustomerID, name, in.Subject, in.Description, in.Status, in.Priority, userID, in.ScheduledAt,
	))
	if err != nil {
		return nil, fmt.Errorf("tickets: create: %w", err)
	}
	return t, nil
}

// Update rewrites every writable field and re-attributes the ticket to
// userID.
func (r *Repository) Update(ctx context.Context, id, userID string, in Input) (*Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	in, err := in.normalize(r.now())
	if err != nil {
		return nil, err
	}

	name, err := r.customerName(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	t, err := scanTicket(r.db.QueryRowContext(ctx, `
		UPDATE tickets
		SET customer_id = $2, customer_name = $3, subject = $4, description = $5,
			status = $6, priority = $7, user_id = $8, scheduled_at = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+selectColumns,
		id, in.CustomerID, name, in.Subject, in.Description, in.Status, in.Priority, userID, in.ScheduledAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tickets: update: %w", err)
	}
	return t, nil
}

// Patch changes status and/or priority.
func (r *Repository) Patch(ctx context.Context, id string, p Patch) (*Ticket, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	sets := make([]string, 0, 3)
	args := []any{id}
	if p.Status != nil {
		args = append(args, *p.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.Priority != nil {
		args = append(args, *p.Priority)
		sets = append(sets, fmt.Sprintf("priority = $%d", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	t, err := scanTicket(r.db.QueryRowContext(ctx,
		"UPDATE tickets SET "+strings.Join(sets, ", ")+" WHERE id = $1 RETURNING "+selectColumns,
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tickets: patch: %w", err)
	}
	return t, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("tickets: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tickets: delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
