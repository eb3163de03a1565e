package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/interfaces"
)

func TestPublishSync_DeliversToAllHandlers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var calls int32
	handler := func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventSearchCompleted, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventSearchCompleted, handler))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventSearchCompleted})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPublishSync_ReportsHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	boom := errors.New("boom")
	require.NoError(t, svc.Subscribe(interfaces.EventSearchFailed, func(ctx context.Context, e interfaces.Event) error {
		return boom
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventSearchFailed})
	assert.ErrorIs(t, err, boom)
}

func TestPublish_IsAsynchronous(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	done := make(chan string, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventSelectionChanged, func(ctx context.Context, e interfaces.Event) error {
		done <- e.SessionID
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSelectionChanged, SessionID: "ses_1"}))

	select {
	case id := <-done:
		assert.Equal(t, "ses_1", id)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestUnsubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	var calls int32
	handler := func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventBoundsChanged, handler))
	require.NoError(t, svc.Unsubscribe(interfaces.EventBoundsChanged, handler))
	assert.Error(t, svc.Unsubscribe(interfaces.EventBoundsChanged, handler))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventBoundsChanged}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSubscribeAfterClose(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	require.NoError(t, svc.Close())
	assert.Error(t, svc.Subscribe(interfaces.EventSessionClosed, func(ctx context.Context, e interfaces.Event) error { return nil }))
}
