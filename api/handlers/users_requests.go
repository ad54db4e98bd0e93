package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"skote-admin/core/accounts"
	"skote-admin/core/utils"
)

var errPasswordMismatch = errors.New("password confirmation does not match")

type userForm struct {
	RoleID   int64
	Name     string
	Email    string
	Password string
	rawRole  string
}

func parseUserForm(r *http.Request) (userForm, error) {
	if err := parseForm(r); err != nil {
		return userForm{}, err
	}
	f := userForm{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    utils.NormalizeEmail(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		rawRole:  strings.TrimSpace(r.PostFormValue("role")),
	}
	if id, err := strconv.ParseInt(f.rawRole, 10, 64); err == nil && id > 0 {
		f.RoleID = id
	}
	return f, nil
}

// validate checks the fields that do not need the database. Role
// assignability and email uniqueness are checked inside the write. withRole
// is false when the target keeps its role regardless of the form.
func (f userForm) validate(minPassword int, withPassword, withRole bool) error {
	if err := utils.ValidateName(f.Name); err != nil {
		return err
	}
	if err := utils.ValidateEmail(f.Email); err != nil {
		return err
	}
	if withRole {
		if f.rawRole == "" {
			return utils.ErrRoleRequired
		}
		if f.RoleID <= 0 {
			return accounts.ErrInvalidRole
		}
	}
	if withPassword {
		return utils.ValidatePassword(f.Password, minPassword)
	}
	return nil
}

type passwordForm struct {
	Password     string
	Confirmation string
}

func parsePasswordForm(r *http.Request) (passwordForm, error) {
	if err := parseForm(r); err != nil {
		return passwordForm{}, err
	}
	return passwordForm{
		Password:     r.PostFormValue("password"),
		Confirmation: r.PostFormValue("password_confirmation"),
	}, nil
}

func (f passwordForm) validate(minPassword int) error {
	if err := utils.ValidatePassword(f.Password, minPassword); err != nil {
		return err
	}
	if f.Confirmation != "" && f.Confirmation != f.Password {
		return errPasswordMismatch
	}
	return nil
}

type tableQuery struct {
	QueryStr string
	RoleID   int64
	Page     int
}

// parseTableQuery reads the listing filters from the URL only, so a posted
// role field never becomes a table filter.
func parseTableQuery(r *http.Request) tableQuery {
	q := r.URL.Query()
	tq := tableQuery{QueryStr: strings.TrimSpace(q.Get("query_str"))}
	if id, err := strconv.ParseInt(strings.TrimSpace(q.Get("role")), 10, 64); err == nil && id > 0 {
		tq.RoleID = id
	}
	if page, err := strconv.Atoi(strings.TrimSpace(q.Get("page"))); err == nil && page > 0 {
		tq.Page = page
	}
	return tq
}

func (tq tableQuery) params(csrf string) accounts.TableParams {
	return accounts.TableParams{QueryStr: tq.QueryStr, RoleID: tq.RoleID, Page: tq.Page, CSRFToken: csrf}
}
