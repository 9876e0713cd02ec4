package linestate

import "errors"

var (
	// ErrLockTimeout means another sample of the same line is still being processed.
	ErrLockTimeout = errors.New("linestate: line busy")
	// ErrEmptyLine is returned for samples without a line identity.
	ErrEmptyLine = errors.New("linestate: empty line")
	// ErrCorruptState is returned when a cached field cannot be parsed.
	ErrCorruptState = errors.New("linestate: corrupt cached state")
)
