package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestAside(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer SetClient(nil)

	ctx := context.Background()
	fetches := 0
	fetch := func(dest *payload) func() error {
		return func() error {
			fetches++
			dest.Name = "alice"
			return nil
		}
	}

	var first payload
	require.NoError(t, Aside(ctx, "k", &first, time.Minute, fetch(&first)))
	assert.Equal(t, "alice", first.Name)
	assert.Equal(t, 1, fetches)

	// Second read is served from the cache without fetching.
	var second payload
	require.NoError(t, Aside(ctx, "k", &second, time.Minute, fetch(&second)))
	assert.Equal(t, "alice", second.Name)
	assert.Equal(t, 1, fetches)

	// Entry expiry falls back to the store again.
	mr.FastForward(2 * time.Minute)
	var third payload
	require.NoError(t, Aside(ctx, "k", &third, time.Minute, fetch(&third)))
	assert.Equal(t, 2, fetches)
}

func TestAsideWithoutClient(t *testing.T) {
	SetClient(nil)

	var out payload
	err := Aside(context.Background(), "k", &out, time.Minute, func() error {
		out.Name = "direct"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", out.Name)
}
