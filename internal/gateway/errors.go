package gateway

import (
	"errors"

	"helpdesk/internal/auth/credentials"
)

var (
	ErrUnreachable        = errors.New("backend unreachable")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrAlreadyConfirmed   = errors.New("email already confirmed")
	ErrWeakPassword       = errors.New("password should be at least 8 characters")
	ErrInvalidToken       = errors.New("confirmation link is invalid or has expired")
	ErrNotFound           = errors.New("not found")
	ErrObjectExists       = errors.New("object already exists")
	ErrInvalidPath        = errors.New("invalid object path")
)

// Error records the gateway operation that failed. Its message is the
// underlying cause so it can be shown to users as-is.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return &Error{Op: op, Err: translate(err)}
}

// translate maps credential-layer sentinels onto gateway sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, credentials.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, credentials.ErrEmailNotConfirmed):
		return ErrEmailNotConfirmed
	case errors.Is(err, credentials.ErrAlreadyRegistered):
		return ErrAlreadyRegistered
	case errors.Is(err, credentials.ErrAlreadyConfirmed):
		return ErrAlreadyConfirmed
	case errors.Is(err, credentials.ErrPasswordTooShort):
		return ErrWeakPassword
	case errors.Is(err, credentials.ErrNotFound):
		return ErrNotFound
	}
	return err
}
