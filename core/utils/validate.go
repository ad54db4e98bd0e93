package utils

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrNameTooLong   = errors.New("name may not be longer than 255 characters")
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("email must be a valid email address")
	ErrRoleRequired  = errors.New("role is required")
)

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) > 255 {
		return ErrNameTooLong
	}
	return nil
}

func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return ErrEmailInvalid
	}
	return nil
}

func ValidatePassword(password string, minLen int) error {
	if password == "" {
		return errors.New("password is required")
	}
	if minLen > 0 && utf8.RuneCountInString(password) < minLen {
		return fmt.Errorf("password must be at least %d characters", minLen)
	}
	if len(password) > 72 {
		return errors.New("password may not be longer than 72 bytes")
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
