package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	linestate "coatline/internal/linestate/domain"
)

// Store keeps line state as plain string keys without expiry.
type Store struct {
	client goredis.Cmdable
	prefix string
}

// Option customizes the store.
type Option func(*Store)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewStore constructs a redis-backed line state store.
func NewStore(client goredis.Cmdable, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("linestate redis: nil client")
	}
	store := &Store{client: client}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func (s *Store) key(lineID string, field linestate.Field) string {
	return linestate.KeyWithPrefix(s.prefix, lineID, field)
}

// Load reads every field of the line in one round trip.
func (s *Store) Load(ctx context.Context, lineID string) (linestate.State, bool, error) {
	state := linestate.New(lineID)
	if s == nil || s.client == nil {
		return state, false, errors.New("linestate redis: nil client")
	}
	keys := make([]string, len(linestate.Fields))
	for i, field := range linestate.Fields {
		keys[i] = s.key(lineID, field)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return state, false, err
	}

	found := false
	for i, field := range linestate.Fields {
		raw, ok := values[i].(string)
		if !ok {
			continue
		}
		found = true
		if err := assign(&state, field, raw); err != nil {
			return linestate.New(lineID), false, err
		}
	}
	return state, found, nil
}

// Save writes every field of the line inside one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, state linestate.State) error {
	if s == nil || s.client == nil {
		return errors.New("linestate redis: nil client")
	}
	if state.LineID == "" {
		return linestate.ErrEmptyLine
	}
	values := encode(state)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, field := range linestate.Fields {
			pipe.Set(ctx, s.key(state.LineID, field), values[field], 0)
		}
		return nil
	})
	return err
}

func encode(state linestate.State) map[linestate.Field]string {
	return map[linestate.Field]string{
		linestate.FieldLastRawCounter:   strconv.FormatInt(state.LastRawCounter, 10),
		linestate.FieldDailyAccumulated: strconv.FormatInt(state.DailyAccumulated, 10),
		linestate.FieldLastReset:        formatTime(state.LastReset),
		linestate.FieldModel:            state.Model,
		linestate.FieldBaselineInstant:  formatTime(state.BaselineInstant),
		linestate.FieldBaselineCounter:  strconv.FormatInt(state.BaselineCounter, 10),
	}
}

func assign(state *linestate.State, field linestate.Field, raw string) error {
	var err error
	switch field {
	case linestate.FieldLastRawCounter:
		state.LastRawCounter, err = parseInt(raw)
	case linestate.FieldDailyAccumulated:
		state.DailyAccumulated, err = parseInt(raw)
	case linestate.FieldLastReset:
		state.LastReset, err = parseTime(raw)
	case linestate.FieldModel:
		state.Model = raw
	case linestate.FieldBaselineInstant:
		state.BaselineInstant, err = parseTime(raw)
	case linestate.FieldBaselineCounter:
		state.BaselineCounter, err = parseInt(raw)
	}
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", linestate.ErrCorruptState, field, raw, err)
	}
	return nil
}

func parseInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
