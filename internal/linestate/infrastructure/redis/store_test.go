package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	linestate "coatline/internal/linestate/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewStore(client)
	require.NoError(t, err)
	return store, server
}

func TestStoreRoundTrip(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Load(ctx, "CL01")
	require.NoError(t, err)
	require.False(t, found)

	state := linestate.State{
		LineID:           "CL01",
		LastRawCounter:   140,
		DailyAccumulated: 1200,
		LastReset:        time.Date(2026, 10, 15, 8, 0, 2, 0, time.UTC),
		Model:            "BLUE-200",
		BaselineCounter:  100,
		BaselineInstant:  time.Date(2026, 10, 15, 9, 15, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, found, err := store.Load(ctx, "CL01")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, state, loaded)

	value, err := server.Get("coatline:line:CL01:pcs_day")
	require.NoError(t, err)
	require.Equal(t, "1200", value)
	require.Zero(t, server.TTL("coatline:line:CL01:pcs_day"))
}

func TestStoreRejectsCorruptValue(t *testing.T) {
	store, server := newTestStore(t)
	require.NoError(t, server.Set("coatline:line:CL02:last_actual", "not-a-number"))

	_, _, err := store.Load(context.Background(), "CL02")
	require.True(t, errors.Is(err, linestate.ErrCorruptState))
}

func TestStoreUnavailable(t *testing.T) {
	store, server := newTestStore(t)
	server.Close()

	_, _, err := store.Load(context.Background(), "CL01")
	require.Error(t, err)
}
