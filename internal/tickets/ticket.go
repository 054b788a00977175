// Package tickets stores support tickets and serves them newest first in
// fixed-size pages.
package tickets

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	PageSize             = 5
	MaxDescriptionLength = 500
)

var (
	ErrNotFound         = errors.New("ticket not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrScheduledInPast  = errors.New("scheduled date must not be in the past")
	ErrDescriptionLong  = fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
)

type Subject string

const (
	SubjectSupport        Subject = "support"
	SubjectTechnicalVisit Subject = "technical_visit"
	SubjectFinancial      Subject = "financial"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var (
	Subjects   = []Subject{SubjectSupport, SubjectTechnicalVisit, SubjectFinancial}
	Statuses   = []Status{StatusOpen, StatusInProgress, StatusResolved}
	Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
)

type Ticket struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customer_id"`
	CustomerName string     `json:"customer_name"`
	Subject      Subject    `json:"subject"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	UserID       *string    `json:"user_id"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Input is the writable part of a ticket.
type Input struct {
	CustomerID  string     `json:"customer_id"`
	Subject     Subject    `json:"subject"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// normalize fills defaults and checks every field against now.
func (in Input) normalize(now time.Time) (Input, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	if in.CustomerID == "" {
		return in, &ValidationError{Field: "customer_id", Reason: "is required"}
	}

	if in.Subject == "" {
		in.Subject = SubjectSupport
	}
	if !lo.Contains(Subjects, in.Subject) {
		return in, &ValidationError{Field: "subject", Reason: fmt.Sprintf("unknown subject %q", in.Subject)}
	}

	if in.Status == "" {
		in.Status = StatusOpen
	}
	if !lo.Contains(Statuses, in.Status) {
		return in, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
	}

	if in.Priority == "" {
		in.Priority = PriorityLow
	}
	if !lo.Contains(Priorities, in.Priority) {
		return in, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", in.Priority)}
	}

	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return in, ErrDescriptionLong
	}

	if in.ScheduledAt != nil && in.ScheduledAt.Before(now) {
		return in, ErrScheduledInPast
	}
	return in, nil
}

// Patch changes status and priority only; nil fields are left alone.
type Patch struct {
	Status   *Status   `json:"status"`
	Priority *Priority `json:"priority"`
}

func (p Patch) validate() error {
	if p.Status == nil && p.Priority == nil {
		return &ValidationError{Field: "patch", Reason: "nothing to update"}
	}
	if p.Status != nil && !lo.Contains(Statuses, *p.Status) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
	}
	if p.Priority != nil && !lo.Contains(Priorities, *p.Priority) {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *p.Priority)}
	}
	return nil
}

// Page is one slice of the newest-first ticket list. NextCursor is the
// created_at of the last ticket and is passed back as the next before.
type Page struct {
	Tickets    []Ticket   `json:"tickets"`
	NextCursor *time.Time `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}
