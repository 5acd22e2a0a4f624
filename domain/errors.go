package domain

import "errors"

// ErrNotFound indicates that the referenced task does not exist in the store.
var ErrNotFound = errors.New("task not found")

// ErrNoOwner is returned when an operation needs an owner identity and none is available.
var ErrNoOwner = errors.New("owner identity is empty")
