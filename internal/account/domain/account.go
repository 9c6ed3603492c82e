package domain

import (
	"strconv"
	"time"
)

type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func ParseID(raw string) (ID, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Account is a registered identity. PasswordHash is the hasher's
// self-describing token, never the plaintext.
type Account struct {
	ID           ID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount is the not-yet-persisted form passed to Store.Create.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
