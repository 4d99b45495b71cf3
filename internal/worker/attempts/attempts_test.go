package attempts

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "gpu:a.jpg", Key("gpu", "a.jpg", []byte("a.jpg")))

	k1 := Key("scalar", "", []byte{0xff})
	k2 := Key("scalar", "", []byte{0xfe})
	assert.Contains(t, k1, "scalar:body:")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, Key("scalar", "", []byte{0xff}))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for want := 1; want <= 3; want++ {
		n, err := m.Incr(ctx, "gpu:a.jpg")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := m.Incr(ctx, "gpu:b.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Reset(ctx, "gpu:a.jpg"))
	n, err = m.Incr(ctx, "gpu:a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, _, err := NewRedis(context.Background(), "not-a-url", "sharpen:attempts", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis url")
}

func TestRedis_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := NewRedisFromClient(client, "sharpen:attempts", time.Hour)
	assert.Equal(t, "sharpen:attempts:gpu:a.jpg", r.key("gpu:a.jpg"))

	_, err := r.Incr(context.Background(), "gpu:a.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count attempt")

	assert.Error(t, r.Reset(context.Background(), "gpu:a.jpg"))
}
