package masterdata

import "errors"

var (
	// ErrLineNotFound indicates telemetry for a line that is not registered.
	ErrLineNotFound = errors.New("masterdata: line not found")
	// ErrDuplicateProduct is returned when a concurrent creator inserted the same product.
	ErrDuplicateProduct = errors.New("masterdata: duplicate product")
)
