package planning

import "errors"

var (
	// ErrDuplicatePlan is returned when a plan for the same line, product and day already exists.
	ErrDuplicatePlan = errors.New("planning: duplicate plan")
	// ErrPlanNotFound is returned when a plan vanished between conflict and re-fetch.
	ErrPlanNotFound = errors.New("planning: plan not found")
	// ErrEmptyProduct is returned when telemetry carries no product name.
	ErrEmptyProduct = errors.New("planning: empty product name")
	// ErrInvalidPlan is returned for plans missing their key fields.
	ErrInvalidPlan = errors.New("planning: invalid plan")
)
