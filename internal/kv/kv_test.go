// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kv

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendFactory func(t *testing.T) Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		BackendMemory: func(t *testing.T) Store { return NewMemoryStore() },
		BackendFile: func(t *testing.T) Store {
			s, err := OpenFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		BackendSQLite: func(t *testing.T) Store {
			s, err := Open(context.Background(), Config{Backend: BackendSQLite, Path: t.TempDir()}, zerolog.Nop())
			require.NoError(t, err)
			return s
		},
		BackendBadger: func(t *testing.T) Store {
			s, err := OpenBadgerStore("")
			require.NoError(t, err)
			return s
		},
		BackendRedis: func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := OpenRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreConformance(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() { _ = s.Close() })
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "history/device-1", []byte(`[1]`)))
			require.NoError(t, s.Put(ctx, "history/device-1", []byte(`[1,2]`)))
			require.NoError(t, s.Put(ctx, "history/console", []byte(`[]`)))
			require.NoError(t, s.Put(ctx, "credentials", []byte(`{"token":"t"}`)))
			require.NoError(t, s.Put(ctx, "odd key*[x]", []byte(`odd`)))

			got, err := s.Get(ctx, "history/device-1")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))

			keys, err := s.Keys(ctx, "history/")
			require.NoError(t, err)
			assert.Equal(t, []string{"history/console", "history/device-1"}, keys)

			keys, err = s.Keys(ctx, "odd key*")
			require.NoError(t, err)
			assert.Equal(t, []string{"odd key*[x]"}, keys)

			require.NoError(t, s.Delete(ctx, "credentials"))
			require.NoError(t, s.Delete(ctx, "credentials"), "delete is idempotent")
			_, err = s.Get(ctx, "credentials")
			require.ErrorIs(t, err, ErrNotFound)

			require.Error(t, s.Put(ctx, "", []byte("x")))
		})
	}
}

func TestStoreConcurrentPuts(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() { _ = s.Close() })
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, s.Put(ctx, fmt.Sprintf("k/%02d", i), []byte{byte(i)}))
				}(i)
			}
			wg.Wait()

			keys, err := s.Keys(ctx, "k/")
			require.NoError(t, err)
			assert.Len(t, keys, 16)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	type endpoint struct {
		Addr string `json:"addr"`
	}
	require.NoError(t, PutJSON(ctx, s, "endpoint", endpoint{Addr: "10.0.0.2:8001"}))

	var out endpoint
	require.NoError(t, GetJSON(ctx, s, "endpoint", &out))
	assert.Equal(t, "10.0.0.2:8001", out.Addr)

	require.ErrorIs(t, GetJSON(ctx, s, "nope", &out), ErrNotFound)

	require.NoError(t, s.Put(ctx, "broken", []byte("{")))
	require.Error(t, GetJSON(ctx, s, "broken", &out))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "etcd"}, zerolog.Nop())
	require.Error(t, err)
}
