package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerConfiguresWriter(t *testing.T) {
	p, err := NewProducer([]string{"b1:9092", "b2:9092"}, "reports")
	require.NoError(t, err)
	defer p.Close()

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "reports", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.False(t, w.Async)
}

func TestNewProducerNeedsBrokers(t *testing.T) {
	_, err := NewProducer(nil, "reports")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestPublishWritesEvent(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "reports")
	at := time.Unix(1700000000, 0)
	p.now = func() time.Time { return at }

	require.NoError(t, p.Publish(context.Background(), []byte("00000000000000000042"), []byte(`{"run_id":42}`)))
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "00000000000000000042", string(m.Key))
	assert.JSONEq(t, `{"run_id":42}`, string(m.Value))
	assert.Equal(t, at, m.Time)
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "content-type", m.Headers[0].Key)
	assert.Equal(t, "application/json", string(m.Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	p := newProducer(&recordingWriter{err: boom}, "reports")

	err := p.Publish(context.Background(), []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "reports")
}
