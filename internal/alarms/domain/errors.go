package alarms

import "errors"

var (
	// ErrNotFound indicates a missing alarm record.
	ErrNotFound = errors.New("alarm: not found")
	// ErrUnknownStatus is returned for alarm statuses other than triggered and recovered.
	ErrUnknownStatus = errors.New("alarm: unknown status")
	// ErrEmptyMessage is returned for alarm signals without a message.
	ErrEmptyMessage = errors.New("alarm: empty message")
)
