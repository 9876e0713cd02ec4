package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	alarms "coatline/internal/alarms/domain"
)

const defaultKeyPrefix = "coatline:alarm"

// StateStore keeps dedup states as plain string keys without expiry.
type StateStore struct {
	client goredis.Cmdable
	prefix string
}

// NewStateStore constructs a redis-backed dedup state store.
func NewStateStore(client goredis.Cmdable, prefix string) (*StateStore, error) {
	if client == nil {
		return nil, errors.New("alarm state redis: nil client")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &StateStore{client: client, prefix: prefix}, nil
}

func (s *StateStore) key(key alarms.Key) string {
	return s.prefix + ":" + key.LineNo + ":" + key.Hash()
}

// Get returns the stored status or StatusNone.
func (s *StateStore) Get(ctx context.Context, key alarms.Key) (alarms.Status, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return alarms.StatusNone, nil
	}
	if err != nil {
		return alarms.StatusNone, err
	}
	return alarms.Status(value), nil
}

// Set stores the status of a key.
func (s *StateStore) Set(ctx context.Context, key alarms.Key, status alarms.Status) error {
	return s.client.Set(ctx, s.key(key), string(status), 0).Err()
}
