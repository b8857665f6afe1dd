package store

import "errors"

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrCityInactive is returned when an operation targets a city that
	// has been deactivated.
	ErrCityInactive = errors.New("city is inactive")
)
