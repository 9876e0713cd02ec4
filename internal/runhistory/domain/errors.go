package runhistory

import "errors"

var (
	// ErrUnknownStatus is returned for status codes outside the closed set.
	ErrUnknownStatus = errors.New("runhistory: unknown status")
	// ErrEmptyLine is returned when a line id is missing.
	ErrEmptyLine = errors.New("runhistory: empty line id")
	// ErrMultipleOpen signals a broken invariant: more than one open interval for a line.
	ErrMultipleOpen = errors.New("runhistory: multiple open intervals")
)
