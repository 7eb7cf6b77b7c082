package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedisAddr = "localhost:6379"

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyLastActiveRoomID)
	assert.ErrorIs(t, err, ErrNotFound)

	v, err := GetOr(ctx, s, KeyLastActiveRoomID, "none")
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	require.NoError(t, s.Set(ctx, KeyLastActiveRoomID, "12"))
	require.NoError(t, s.Set(ctx, KeyToken, "abc"))
	require.NoError(t, s.Set(ctx, KeyLastActiveRoomID, "13"))

	v, err = s.Get(ctx, KeyLastActiveRoomID)
	require.NoError(t, err)
	assert.Equal(t, "13", v)

	require.NoError(t, s.Delete(ctx, KeyLastActiveRoomID))
	require.NoError(t, s.Delete(ctx, KeyLastActiveRoomID))
	_, err = s.Get(ctx, KeyLastActiveRoomID)
	assert.ErrorIs(t, err, ErrNotFound)

	v, err = s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	s, err := NewFile(path)
	require.NoError(t, err)

	exerciseStore(t, s)

	reopened, err := NewFile(path)
	require.NoError(t, err)
	v, err := reopened.Get(context.Background(), KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := NewFile(path)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), KeyToken)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	prefix := "chat-client-test:" + t.Name() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	exerciseStore(t, NewRedis(client, prefix))
}
