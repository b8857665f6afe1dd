package config

import "errors"

var (
	// ErrInvalidValue indicates a configuration field has an invalid value.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrCitiesFileNotFound indicates the city roster file is missing.
	ErrCitiesFileNotFound = errors.New("cities file not found")
)
