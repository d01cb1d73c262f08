package agent

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	eng, err := NewEngine("anthropic", "test-key")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", eng.Provider())

	eng, err = NewEngine("openai", "test-key")
	require.NoError(t, err)
	assert.Equal(t, "openai", eng.Provider())

	_, err = NewEngine("mystery", "test-key")
	assert.Error(t, err)
}

func TestEventStream_DeliversInOrder(t *testing.T) {
	s := newEventStream()

	go func() {
		s.emit(Event{Type: EventTypeInit, Init: &InitEvent{SessionID: "s1"}})
		s.emit(TextEvent("hello"))
		s.emit(Event{Type: EventTypeResult, Result: &ResultEvent{Subtype: ResultSuccess}})
		s.finish(nil)
	}()

	ctx := context.Background()

	ev, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTypeInit, ev.Type)
	assert.Equal(t, "s1", ev.Init.SessionID)

	ev, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTypeAssistant, ev.Type)
	assert.Equal(t, "hello", ev.Assistant.Blocks[0].Text)

	ev, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTypeResult, ev.Type)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	// EOF is sticky
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventStream_SurfacesProducerError(t *testing.T) {
	s := newEventStream()
	boom := errors.New("anthropic stream: 503 service unavailable")

	go func() {
		s.emit(TextEvent("partial"))
		s.finish(boom)
	}()

	ctx := context.Background()

	_, err := s.Next(ctx)
	require.NoError(t, err)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestEventStream_CloseUnblocksProducer(t *testing.T) {
	s := newEventStream()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Fill the buffer past capacity; emit must return false after Close.
		for i := 0; i < 100; i++ {
			if !s.emit(TextEvent("x")) {
				return
			}
		}
	}()

	require.NoError(t, s.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not unblock after Close")
	}
}

func TestEventStream_NextHonorsContext(t *testing.T) {
	s := newEventStream()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
