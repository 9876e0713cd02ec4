package telemetry

import "errors"

var (
	// ErrMalformedPayload is returned for messages that fail decoding or schema validation.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")
	// ErrUnknownTopic is returned for messages on topics without a route.
	ErrUnknownTopic = errors.New("telemetry: unknown topic")
)
