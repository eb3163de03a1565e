package geolocation

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
	"github.com/ternarybob/wayfinder/internal/models"
)

func TestDevice_GetCurrentPosition(t *testing.T) {
	d := NewDevice(arbor.NewLogger())
	want := interfaces.Position{Coordinates: models.Coordinates{Lat: 44.43, Lng: 26.10}, Timestamp: 1}

	d.Attach(func() error {
		go d.ReportPosition(want)
		return nil
	})

	got, err := d.GetCurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDevice_GetCurrentPosition_Errors(t *testing.T) {
	t.Run("no client attached", func(t *testing.T) {
		d := NewDevice(arbor.NewLogger())
		_, err := d.GetCurrentPosition(context.Background())

		var posErr *interfaces.PositionError
		require.ErrorAs(t, err, &posErr)
		assert.Equal(t, interfaces.PositionUnavailable, posErr.Code)
	})

	t.Run("client reports denial", func(t *testing.T) {
		d := NewDevice(arbor.NewLogger())
		d.Attach(func() error {
			go d.ReportError(&interfaces.PositionError{Code: interfaces.PositionPermissionDenied, Message: "denied"})
			return nil
		})

		_, err := d.GetCurrentPosition(context.Background())
		var posErr *interfaces.PositionError
		require.ErrorAs(t, err, &posErr)
		assert.Equal(t, interfaces.PositionPermissionDenied, posErr.Code)
	})

	t.Run("send fails", func(t *testing.T) {
		d := NewDevice(arbor.NewLogger())
		d.Attach(func() error { return errors.New("socket closed") })

		_, err := d.GetCurrentPosition(context.Background())
		var posErr *interfaces.PositionError
		require.ErrorAs(t, err, &posErr)
		assert.Equal(t, interfaces.PositionUnavailable, posErr.Code)
	})

	t.Run("context deadline", func(t *testing.T) {
		d := NewDevice(arbor.NewLogger())
		d.Attach(func() error { return nil })

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := d.GetCurrentPosition(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestDevice_Watch(t *testing.T) {
	d := NewDevice(arbor.NewLogger())

	var positions, failures atomic.Int32
	id, err := d.WatchPosition(
		func(interfaces.Position) { positions.Add(1) },
		func(error) { failures.Add(1) },
	)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Watching())

	d.ReportPosition(interfaces.Position{})
	d.ReportPosition(interfaces.Position{})
	d.ReportError(&interfaces.PositionError{Code: interfaces.PositionUnavailable})
	assert.Equal(t, int32(2), positions.Load())
	assert.Equal(t, int32(1), failures.Load())

	d.ClearWatch(id)
	assert.Equal(t, 0, d.Watching())

	d.ReportPosition(interfaces.Position{})
	assert.Equal(t, int32(2), positions.Load(), "no callback after ClearWatch")
}

func TestDevice_ClearWatchFromCallback(t *testing.T) {
	d := NewDevice(arbor.NewLogger())

	var id interfaces.WatchID
	var calls atomic.Int32
	id, err := d.WatchPosition(func(interfaces.Position) {
		calls.Add(1)
		d.ClearWatch(id)
	}, nil)
	require.NoError(t, err)

	d.ReportPosition(interfaces.Position{})
	d.ReportPosition(interfaces.Position{})
	assert.Equal(t, int32(1), calls.Load())
}

func TestDevice_Close(t *testing.T) {
	d := NewDevice(arbor.NewLogger())
	d.Attach(func() error { return nil })

	done := make(chan error, 1)
	go func() {
		_, err := d.GetCurrentPosition(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.pending) == 1
	}, time.Second, 5*time.Millisecond)

	d.Close()

	select {
	case err := <-done:
		var posErr *interfaces.PositionError
		require.ErrorAs(t, err, &posErr)
	case <-time.After(time.Second):
		t.Fatal("pending request not released by Close")
	}

	_, err := d.WatchPosition(nil, nil)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	coords := models.Coordinates{Lat: 51.5074, Lng: -0.1278}
	s := NewStatic(coords)

	pos, err := s.GetCurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coords, pos.Coordinates)

	got := make(chan interfaces.Position, 1)
	id, err := s.WatchPosition(func(p interfaces.Position) { got <- p }, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenWatches())

	select {
	case p := <-got:
		assert.Equal(t, coords, p.Coordinates)
	case <-time.After(time.Second):
		t.Fatal("watch never delivered")
	}
	s.ClearWatch(id)
	assert.Zero(t, s.OpenWatches())

	failing := NewFailing(&interfaces.PositionError{Code: interfaces.PositionTimeout})
	_, err = failing.GetCurrentPosition(context.Background())
	assert.Error(t, err)
}

func TestDevice_DetachOnlyRemovesOwnClient(t *testing.T) {
	d := NewDevice(arbor.NewLogger())

	detachFirst := d.Attach(func() error { return errors.New("first") })
	detachSecond := d.Attach(func() error { return errors.New("second") })

	detachFirst()
	_, err := d.GetCurrentPosition(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")

	detachSecond()
	_, err = d.GetCurrentPosition(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device attached")
}
