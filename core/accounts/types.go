package accounts

import (
	"errors"

	"skote-admin/core/store"
)

var (
	ErrInvalidRole = errors.New("the selected role is invalid")
	ErrEmailTaken  = errors.New("the email has already been taken")
)

// Outcome separates a write that ran but did not persist anything from one
// that failed with an error.
type Outcome int

const (
	OutcomeSaved Outcome = iota + 1
	OutcomeNotSaved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeNotSaved:
		return "not_saved"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	User    *store.User
}

func (r Result) Saved() bool {
	return r.Outcome == OutcomeSaved
}

func saved(u *store.User) Result {
	return Result{Outcome: OutcomeSaved, User: u}
}

func notSaved() Result {
	return Result{Outcome: OutcomeNotSaved}
}

type TableParams struct {
	QueryStr  string
	RoleID    int64
	Page      int
	CSRFToken string
}

type CreateParams struct {
	RoleID       int64
	Name         string
	Email        string
	PasswordHash string
}

type UpdateParams struct {
	RoleID int64
	Name   string
	Email  string
}
