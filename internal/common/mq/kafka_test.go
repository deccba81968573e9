package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaMessageRoundTripKeepsMetadata(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &Message{
		ID:         "owner-7",
		Body:       []byte(`{"type":"judged"}`),
		Headers:    map[string]string{"event_type": "judged"},
		Timestamp:  ts,
		RetryCount: 2,
		MaxRetries: 5,
		Expiration: 90 * time.Second,
	}

	km := toKafkaMessage("submission.events", in)
	assert.Equal(t, "submission.events", km.Topic)
	assert.Equal(t, []byte("owner-7"), km.Key)

	out := fromKafkaMessage(km)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Body, out.Body)
	assert.True(t, ts.Equal(out.Timestamp))
	assert.Equal(t, 2, out.RetryCount)
	assert.Equal(t, 5, out.MaxRetries)
	assert.Equal(t, 90*time.Second, out.Expiration)
	assert.Equal(t, map[string]string{"event_type": "judged"}, out.Headers)
}

func TestSubscribeOptionsDefaults(t *testing.T) {
	t.Parallel()

	var opts SubscribeOptions
	opts.SetDefaults()
	assert.Equal(t, 1, opts.PrefetchCount)
	assert.Equal(t, 1, opts.Concurrency)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, time.Second, opts.RetryDelay)
}

func TestNewKafkaQueueValidation(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaQueue(KafkaConfig{})
	require.Error(t, err)

	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	require.NoError(t, err)
	assert.Error(t, q.SubscribeWithOptions(context.Background(), "", func(context.Context, *Message) error { return nil }, nil))
	assert.Error(t, q.Subscribe(context.Background(), "t", nil))
	assert.Error(t, q.Publish(context.Background(), "t", nil))
	require.NoError(t, q.Close())
	assert.Error(t, q.Subscribe(context.Background(), "t", func(context.Context, *Message) error { return nil }))
}

func TestTokenLimiter(t *testing.T) {
	t.Parallel()

	l := NewTokenLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 0, l.Available())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(ctx))

	l.Release()
	l.Release()
	assert.Equal(t, 1, l.Available())
}
