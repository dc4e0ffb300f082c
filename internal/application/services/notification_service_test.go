package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mfl.dev/cli/internal/core/testfixtures"
)

func TestFetchUnreadCountSkippedWhenSignedOut(t *testing.T) {
	api := &MockAPIGateway{}
	svc := NewNotificationService(api, stubSession{}, &testfixtures.RecordingLogger{})

	count, err := svc.FetchUnreadCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	api.AssertNotCalled(t, "UnreadNotificationCount", mock.Anything)
}

func TestFetchUnreadCount(t *testing.T) {
	api := &MockAPIGateway{}
	api.On("UnreadNotificationCount", mock.Anything).Return(4, nil).Once()
	api.On("UnreadNotificationCount", mock.Anything).Return(0, errors.New("down")).Once()
	svc := NewNotificationService(api, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})

	count, err := svc.FetchUnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// A failed refresh keeps the last known count.
	count, err = svc.FetchUnreadCount(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 4, svc.UnreadCount())
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	api := &MockAPIGateway{}
	api.On("UnreadNotificationCount", mock.Anything).Return(1, nil)
	svc := NewNotificationService(api, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})
	_, err := svc.FetchUnreadCount(context.Background())
	require.NoError(t, err)

	svc.DecrementCount()
	svc.DecrementCount()
	assert.Equal(t, 0, svc.UnreadCount())
}

func TestMarkReadAndMarkAllRead(t *testing.T) {
	api := &MockAPIGateway{}
	api.On("UnreadNotificationCount", mock.Anything).Return(3, nil)
	api.On("MarkNotificationRead", mock.Anything, int64(11)).Return(nil)
	api.On("MarkAllNotificationsRead", mock.Anything).Return(nil)
	svc := NewNotificationService(api, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})
	ctx := context.Background()

	_, err := svc.FetchUnreadCount(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, 11))
	assert.Equal(t, 2, svc.UnreadCount())

	require.NoError(t, svc.MarkAllRead(ctx))
	assert.Equal(t, 0, svc.UnreadCount())
	api.AssertExpectations(t)
}

func TestMarkReadFailureKeepsCount(t *testing.T) {
	api := &MockAPIGateway{}
	api.On("UnreadNotificationCount", mock.Anything).Return(3, nil)
	api.On("MarkNotificationRead", mock.Anything, int64(11)).Return(errors.New("404"))
	svc := NewNotificationService(api, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})
	ctx := context.Background()
	_, _ = svc.FetchUnreadCount(ctx)

	assert.Error(t, svc.MarkRead(ctx, 11))
	assert.Equal(t, 3, svc.UnreadCount())
}

func TestMarkReadRequiresSignIn(t *testing.T) {
	svc := NewNotificationService(&MockAPIGateway{}, stubSession{}, &testfixtures.RecordingLogger{})
	assert.ErrorIs(t, svc.MarkRead(context.Background(), 1), ErrNotAuthenticated)
	assert.ErrorIs(t, svc.MarkAllRead(context.Background()), ErrNotAuthenticated)
}

func TestPollReportsCountsUntilCancelled(t *testing.T) {
	api := &MockAPIGateway{}
	api.On("UnreadNotificationCount", mock.Anything).Return(2, nil)
	svc := NewNotificationService(api, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var seen []int
	done := make(chan error, 1)

	go func() {
		done <- svc.Poll(ctx, 5*time.Millisecond, func(n int) {
			mu.Lock()
			seen = append(seen, n)
			if len(seen) == 3 {
				cancel()
			}
			mu.Unlock()
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, len(seen), 3)
	assert.Equal(t, 2, seen[0])
	assert.False(t, svc.IsPolling())
}

func TestPollRejectsSecondLoop(t *testing.T) {
	api := &MockAPIGateway{}
	api.On("UnreadNotificationCount", mock.Anything).Return(0, nil)
	svc := NewNotificationService(api, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Poll(ctx, time.Hour, func(int) { once.Do(func() { close(started) }) })
	}()
	<-started

	assert.True(t, svc.IsPolling())
	assert.ErrorIs(t, svc.Poll(context.Background(), time.Second, nil), ErrAlreadyPolling)

	cancel()
	<-done
	assert.False(t, svc.IsPolling())
}

func TestPollRejectsBadInterval(t *testing.T) {
	svc := NewNotificationService(&MockAPIGateway{}, stubSession{authenticated: true}, &testfixtures.RecordingLogger{})
	assert.Error(t, svc.Poll(context.Background(), 0, nil))
}
