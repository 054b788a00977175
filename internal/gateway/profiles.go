package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"helpdesk/internal/db"
)

// ProfileStore reads and writes the profiles table.
type ProfileStore struct {
	db *db.DB
}

func NewProfileStore(db *db.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Fetch(ctx context.Context, id string) (*Profile, error) {
	var (
		p            Profile
		avatarURL    sql.NullString
		organization sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar_url, organization, is_admin
		FROM profiles
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &avatarURL, &organization, &p.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if avatarURL.Valid {
		p.AvatarURL = &avatarURL.String
	}
	if organization.Valid {
		p.Organization = &organization.String
	}
	return &p, nil
}

func (s *ProfileStore) Insert(ctx context.Context, p Profile) error {
	if p.ID == "" {
		return fmt.Errorf("gateway: profile id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, email, avatar_url, organization)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, p.Email, p.AvatarURL, p.Organization)
	return err
}

// Update writes only the non-nil fields of u.
func (s *ProfileStore) Update(ctx context.Context, id string, u ProfileUpdate) error {
	if u.Empty() {
		return nil
	}

	sets := make([]string, 0, 4)
	args := []any{id}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.AvatarURL != nil {
		add("avatar_url", *u.AvatarURL)
	}
	if u.Organization != nil {
		add("organization", *u.Organization)
	}
	sets = append(sets, "updated_at = NOW()")

	res, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET "+strings.Join(sets, ", ")+" WHERE id = $1",
		args...,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
