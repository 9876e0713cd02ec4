package alarms

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Status is the last known state of an alarm incident.
type Status string

const (
	StatusNone      Status = ""
	StatusTriggered Status = "triggered"
	StatusRecovered Status = "recovered"
)

// ParseStatus accepts the two statuses machines report, case-insensitively.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusTriggered:
		return StatusTriggered, nil
	case StatusRecovered:
		return StatusRecovered, nil
	default:
		return StatusNone, fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
}

// Event is one row of the alarm log.
type Event struct {
	ID        int64     `json:"id"`
	Machine   string    `json:"machine"`
	LineNo    string    `json:"line_no"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Key identifies an alarm incident.
type Key struct {
	Machine string
	LineNo  string
	Message string
}

// NewKey builds a key with a normalized message.
func NewKey(machine, lineNo, message string) Key {
	return Key{
		Machine: strings.TrimSpace(machine),
		LineNo:  strings.TrimSpace(lineNo),
		Message: NormalizeMessage(message),
	}
}

// NormalizeMessage lowercases the message and collapses whitespace runs.
func NormalizeMessage(message string) string {
	return strings.ToLower(strings.Join(strings.Fields(message), " "))
}

// Hash returns a stable short identifier of the key.
func (k Key) Hash() string {
	sum := sha1.Sum([]byte(k.Machine + "|" + k.LineNo + "|" + k.Message))
	return hex.EncodeToString(sum[:])
}

// Transition returns the next state and whether an alarm row must be inserted.
// A repeated trigger is a no-op; recovery never inserts.
func Transition(current, incoming Status) (Status, bool) {
	switch incoming {
	case StatusTriggered:
		if current == StatusTriggered {
			return current, false
		}
		return StatusTriggered, true
	case StatusRecovered:
		return StatusRecovered, false
	default:
		return current, false
	}
}

// EventRepository appends and reads alarm log rows.
type EventRepository interface {
	Insert(ctx context.Context, event *Event) error
	ListRecent(ctx context.Context, lineNo string, limit int) ([]Event, error)
}

// StateStore keeps the last known status per incident key in the cache.
type StateStore interface {
	// Get returns StatusNone when the key has never been seen.
	Get(ctx context.Context, key Key) (Status, error)
	Set(ctx context.Context, key Key, status Status) error
}
