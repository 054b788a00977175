package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"helpdesk/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const selectColumns = `id, name, fantasy_name, cnpj, address, active, created_at, updated_at`

type Repository struct {
	db *db.DB
}

func NewRepository(db *db.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.FantasyName, &c.CNPJ, &c.Address, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActive returns active customers ordered by fantasy name.
func (r *Repository) ListActive(ctx context.Context) ([]Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM customers
		WHERE active = true
		ORDER BY fantasy_name
	`)
	if err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	list := make([]Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("customers: scan: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (*Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	c, err := scanCustomer(r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM customers
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("customers: get: %w", err)
	}
	return c, nil
}

func (r *Repository) Create(ctx context.Context, in Input) (*Customer, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	c, err := scanCustomer(r.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, fantasy_name, cnpj, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+selectColumns,
		uuid.NewString(), in.Name, in.FantasyName, in.CNPJ, in.Address,
	))
	if err != nil {
		return nil, translate("create", err)
	}
	return c, nil
}

// Update rewrites name, fantasy name and address. The cnpj column is only
// written when it differs from the stored one, so the unique index is not
// touched by ordinary edits.
func (r *Repository) Update(ctx context.Context, id string, in Input) (*Customer, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sets := []string{"name = $2", "fantasy_name = $3", "address = $4"}
	args := []any{id, in.Name, in.FantasyName, in.Address}
	if in.CNPJ != current.CNPJ {
		args = append(args, in.CNPJ)
		sets = append(sets, fmt.Sprintf("cnpj = $%d", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		"UPDATE customers SET "+strings.Join(sets, ", ")+" WHERE id = $1 RETURNING "+selectColumns,
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, translate("update", err)
	}
	return c, nil
}

// Delete removes the customer; its tickets go with it.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("customers: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("customers: delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateCNPJ
	}
	return fmt.Errorf("customers: %s: %w", op, err)
}
