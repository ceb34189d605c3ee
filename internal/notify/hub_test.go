package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_FanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe(4)
	b := h.Subscribe(4)
	require.Equal(t, 2, h.Len())

	ev := Inserted("c1", time.Now())
	require.NoError(t, h.Publish(context.Background(), ev))

	assert.Equal(t, ev, recv(t, a))
	assert.Equal(t, ev, recv(t, b))
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub()
	s := h.Subscribe(1)
	other := h.Subscribe(1)

	s.Close()
	s.Close()
	assert.Equal(t, 1, h.Len())

	_, ok := <-s.Events()
	assert.False(t, ok, "closed subscription channel should be closed")

	// Remaining subscribers keep receiving.
	require.NoError(t, h.Publish(context.Background(), Inserted("c2", time.Now())))
	assert.Equal(t, "c2", recv(t, other).ID)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub()
	s := h.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = h.Publish(context.Background(), Inserted("x", time.Now()))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, s.Events(), 1)
}

func TestHub_DefaultBuffer(t *testing.T) {
	h := NewHub()
	s := h.Subscribe(0)
	assert.Equal(t, DefaultBuffer, cap(s.Events()))
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	s := h.Subscribe(1)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
	assert.ErrorIs(t, h.Publish(context.Background(), Inserted("c", time.Now())), ErrPublish)

	late := h.Subscribe(1)
	_, ok = <-late.Events()
	assert.False(t, ok, "subscribing after close yields a closed subscription")
	late.Close()
}

func TestHub_ConcurrentSubscribePublishClose(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := h.Subscribe(2)
			_ = h.Publish(context.Background(), Inserted("c", time.Now()))
			s.Close()
		}()
		go func() {
			defer wg.Done()
			_ = h.Publish(context.Background(), Inserted("d", time.Now()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Len())
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"insert","table":"complaints","id":"c1","at":"2025-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, EventInsert, ev.Type)
	assert.Equal(t, "c1", ev.ID)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ev.At.UTC())

	ev, err = DecodeEvent([]byte(`{"type":"UPDATE","id":"c2"}`))
	require.NoError(t, err)
	assert.Equal(t, ComplaintsTable, ev.Table)
	assert.False(t, ev.At.IsZero())

	for _, bad := range []string{`nope`, `{"type":"TRUNCATE","id":"x"}`, `{"type":"DELETE"}`} {
		_, err := DecodeEvent([]byte(bad))
		assert.ErrorIs(t, err, ErrBadEvent, bad)
	}
}
