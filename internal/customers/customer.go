// Package customers manages the companies tickets are opened for.
package customers

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("customer not found")
	ErrDuplicateCNPJ = errors.New("a customer with this cnpj already exists")
	ErrInvalid       = errors.New("name, cnpj and address are required")
)

type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FantasyName string    `json:"fantasy_name"`
	CNPJ        string    `json:"cnpj"`
	Address     string    `json:"address"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input is the writable part of a customer.
type Input struct {
	Name        string `json:"name"`
	FantasyName string `json:"fantasy_name"`
	CNPJ        string `json:"cnpj"`
	Address     string `json:"address"`
}

// normalize trims every field and defaults the fantasy name to the name.
func (in Input) normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.FantasyName = strings.TrimSpace(in.FantasyName)
	in.CNPJ = strings.TrimSpace(in.CNPJ)
	in.Address = strings.TrimSpace(in.Address)

	if in.Name == "" || in.CNPJ == "" || in.Address == "" {
		return in, ErrInvalid
	}
	if in.FantasyName == "" {
		in.FantasyName = in.Name
	}
	return in, nil
}
