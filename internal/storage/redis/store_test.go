package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values map[string]string
	getErr error
}

func (f *fakeRedis) Get(_ context.Context, k string) *goredis.StringCmd {
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[k]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, k string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	f.values[k] = string(value.([]byte))
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestStoreUsesLowercasedKeys(t *testing.T) {
	fake := &fakeRedis{values: map[string]string{}}
	store := newStore(fake)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "0xBB")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(ctx, "0xBB", []byte(`[]`)))
	require.Contains(t, fake.values, "payplanner:history:0xbb")

	data, ok, err := store.Load(ctx, "0xbb")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[]", string(data))

	require.NoError(t, store.Delete(ctx, "0xBb"))
	require.Empty(t, fake.values)
	require.NoError(t, store.Close())
}

func TestStoreLoadError(t *testing.T) {
	store := newStore(&fakeRedis{getErr: errors.New("connection reset")})
	_, _, err := store.Load(context.Background(), "0x1")
	require.EqualError(t, err, "connection reset")
}
