package models

import "errors"

var (
	// ErrInvalidBanana is returned when a city key fails canonical validation.
	ErrInvalidBanana = errors.New("invalid banana")

	// ErrInvalidCity is returned when city attributes fail validation.
	ErrInvalidCity = errors.New("invalid city")

	// ErrInvalidMeeting is returned when a normalized meeting violates the
	// packet/agenda exclusivity rule. This is never recovered: it indicates
	// an adapter bug.
	ErrInvalidMeeting = errors.New("invalid meeting")

	// ErrCorruptPayload is returned when a queue payload cannot be decoded
	// into its typed schema. Jobs carrying such payloads fail terminally.
	ErrCorruptPayload = errors.New("corrupt queue payload")
)
