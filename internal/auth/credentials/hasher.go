package credentials

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	HashVersionBcrypt = "bcrypt"

	MinPasswordLength = 8
	// bcrypt only reads the first 72 bytes.
	MaxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

// hashCost is a variable so tests can hash cheaply.
var hashCost = bcrypt.DefaultCost

// HashPassword checks the password length in characters and hashes it.
func HashPassword(password string) (hash string, version string, err error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", "", ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return "", "", ErrPasswordTooLong
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", "", err
	}
	return string(b), HashVersionBcrypt, nil
}

func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// NeedsRehash reports whether hash was made with a cost below the current
// one. An unreadable hash is left alone.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost < hashCost
}
