package models

import "errors"

// Custom errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyFinished = errors.New("record already finished")
	ErrDuplicateKey    = errors.New("duplicate key violation")
	ErrInvalidID       = errors.New("invalid ID format")
)
