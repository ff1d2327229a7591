package store

import "errors"

var (
	ErrNotFound      = errors.New("event not found")
	ErrInvalidColumn = errors.New("invalid remote id column name")
	ErrInvalidEvent  = errors.New("invalid event")
)
