package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpdesk/internal/db"
	"helpdesk/internal/logger"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrAlreadyConfirmed   = errors.New("email already confirmed")
	ErrNotFound           = errors.New("account not found")
)

type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

// Register stores a password principal. When confirmed is true the email is
// marked confirmed immediately; otherwise the account waits for Confirm.
func (s *Service) Register(
	ctx context.Context,
	email string,
	password string,
	meta Metadata,
	confirmed bool,
) (*Account, error) {

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	// 1. Hash password before touching the database
	hash, version, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("credentials: marshal metadata: %w", err)
	}

	var confirmedAt *time.Time
	if confirmed {
		now := time.Now().UTC()
		confirmedAt = &now
	}

	// 2. Find user by email (oauth sign-ins create rows without a password)
	var (
		userID       uuid.UUID
		existingHash sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM auth_users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&userID, &existingHash)

	switch {
	case err == sql.ErrNoRows:
		// 3a. Create new user
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO auth_users (email, password_hash, hash_version, email_confirmed_at, raw_metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, email, hash, version, confirmedAt, rawMeta).Scan(&userID)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existingHash.Valid:
		return nil, ErrAlreadyRegistered
	default:
		// 3b. Attach a password to the existing principal
		_, err = s.db.ExecContext(ctx, `
			UPDATE auth_users
			SET password_hash = $2, hash_version = $3, raw_metadata = $4, updated_at = NOW()
			WHERE id = $1
		`, userID, hash, version, rawMeta)
		if err != nil {
			return nil, err
		}
	}

	return &Account{
		ID:          userID.String(),
		Email:       email,
		ConfirmedAt: confirmedAt,
		Metadata:    meta,
	}, nil
}

// Authenticate verifies the password. ErrEmailNotConfirmed is only reported
// once the password matched, so it never leaks account existence.
func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (*Account, error) {

	var (
		userID       uuid.UUID
		storedEmail  string
		passwordHash sql.NullString
		confirmedAt  sql.NullTime
	)

	// 1. Find user + credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, email_confirmed_at
		FROM auth_users
		WHERE LOWER(email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&userID, &storedEmail, &passwordHash, &confirmedAt)

	if err != nil {
		if err != sql.ErrNoRows {
			return nil, err
		}
		// hide whether user exists or not
		return nil, ErrInvalidCredentials
	}

	// 2. Verify password
	if !passwordHash.Valid {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(passwordHash.String, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Require confirmation
	if !confirmedAt.Valid {
		return nil, ErrEmailNotConfirmed
	}

	// 4. Upgrade hashes made at an older cost while the password is at hand
	if NeedsRehash(passwordHash.String) {
		s.rehash(ctx, userID.String(), password)
	}

	return &Account{
		ID:          userID.String(),
		Email:       storedEmail,
		ConfirmedAt: &confirmedAt.Time,
	}, nil
}

func (s *Service) rehash(ctx context.Context, userID, password string) {
	hash, version, err := HashPassword(password)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE auth_users
			SET password_hash = $2, hash_version = $3, updated_at = NOW()
			WHERE id = $1
		`, userID, hash, version)
	}
	if err != nil {
		logger.Warn("password rehash failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// FindByEmail loads an account by case-insensitive email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, email_confirmed_at, raw_metadata
		FROM auth_users
		WHERE LOWER(email) = LOWER($1)
	`, strings.TrimSpace(email)))
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, email_confirmed_at, raw_metadata
		FROM auth_users
		WHERE id = $1
	`, id))
}

// Confirm marks the account's email as confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (*Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Confirmed() {
		return nil, ErrAlreadyConfirmed
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE auth_users
		SET email_confirmed_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, now)
	if err != nil {
		return nil, err
	}

	account.ConfirmedAt = &now
	return account, nil
}

func (s *Service) scanAccount(row *sql.Row) (*Account, error) {
	var (
		userID      uuid.UUID
		email       string
		confirmedAt sql.NullTime
		rawMeta     []byte
	)
	if err := row.Scan(&userID, &email, &confirmedAt, &rawMeta); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	account := &Account{ID: userID.String(), Email: email}
	if confirmedAt.Valid {
		account.ConfirmedAt = &confirmedAt.Time
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &account.Metadata); err != nil {
			return nil, fmt.Errorf("credentials: decode metadata: %w", err)
		}
	}
	return account, nil
}
