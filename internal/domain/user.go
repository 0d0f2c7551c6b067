// Package domain contains entities without transport or lifecycle logic.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type UserID string

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

// NewUser validates the display name; an empty name falls back to the id,
// cut to MaxDisplayNameLen characters.
func NewUser(id UserID, displayName string) (*User, error) {
	if id == "" || len(id) > MaxUserIDLen {
		return nil, ErrUnauthorized
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = truncate(string(id), MaxDisplayNameLen)
	}
	u := &User{ID: id}
	if err := u.SetDisplayName(name); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetDisplayName(name string) error {
	if name == "" {
		return ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = name
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
