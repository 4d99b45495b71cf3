package messagingtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
)

func TestBroker_FanoutAndRequeue(t *testing.T) {
	b := NewBroker()
	b.Bind("image_jobs", "cpu_jobs", "gpu_jobs")
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "image_jobs", "", []byte("a.jpg"), messaging.ContentTypeText))
	assert.Len(t, b.Pending("cpu_jobs"), 1)
	assert.Len(t, b.Pending("gpu_jobs"), 1)

	r := b.Receiver("cpu_jobs")
	d, err := r.Receive(ctx)
	require.NoError(t, err)
	assert.False(t, d.Redelivered())
	require.NoError(t, d.Nack(true))

	d, err = r.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, d.Redelivered())
	assert.Equal(t, "a.jpg", string(d.Body()))
	require.NoError(t, d.Ack())
	assert.Error(t, d.Ack())

	assert.Equal(t, 1, b.Acks())
	assert.Equal(t, 1, b.Nacks())
}

func TestBroker_LostAck(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "", "cpu_jobs", []byte("a.jpg"), messaging.ContentTypeText))
	b.LoseAcks(1)

	r := b.Receiver("cpu_jobs")
	d, err := r.Receive(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Ack(), ErrAckLost)

	d, err = r.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, d.Redelivered())
	require.NoError(t, d.Ack())
	assert.Equal(t, 1, b.Acks())
}

func TestBroker_ReceiveBlocksUntilPublishOrClose(t *testing.T) {
	b := NewBroker()
	r := b.Receiver("image_results")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = b.Publish(context.Background(), "", "image_results", []byte("{}"), messaging.ContentTypeJSON)
	}()
	d, err := r.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, messaging.ContentTypeJSON, d.ContentType())

	b.Close("image_results")
	b.Close("image_results")
	_, err = r.Receive(context.Background())
	assert.ErrorIs(t, err, messaging.ErrClosed)
}
