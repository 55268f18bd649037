package ledger

import "errors"

var (
	ErrNoActiveUser = errors.New("no active user")
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)
