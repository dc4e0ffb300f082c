package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mfl.dev/cli/internal/application/ports"
)

// ErrAlreadyPolling is returned when Poll is called while a poll loop runs
var ErrAlreadyPolling = errors.New("notification polling already running")

// NotificationService tracks the unread notification count
type NotificationService struct {
	api     ports.APIGateway
	session ports.SessionProvider
	logger  ports.LoggingGateway

	mu      sync.RWMutex
	unread  int
	polling atomic.Bool
}

// NewNotificationService creates a new notification service
func NewNotificationService(api ports.APIGateway, session ports.SessionProvider, logger ports.LoggingGateway) *NotificationService {
	return &NotificationService{
		api:     api,
		session: session,
		logger:  logger,
	}
}

// FetchUnreadCount refreshes the unread count from the server. Visitors who
// are not signed in are skipped and keep the current count. On failure the
// current count is kept and the error returned.
func (s *NotificationService) FetchUnreadCount(ctx context.Context) (int, error) {
	if !s.session.IsAuthenticated() {
		return s.UnreadCount(), nil
	}

	count, err := s.api.UnreadNotificationCount(ctx)
	if err != nil {
		s.logger.LogError(err, "Failed to fetch unread count", nil)
		return s.UnreadCount(), err
	}

	s.mu.Lock()
	s.unread = count
	s.mu.Unlock()
	return count, nil
}

// UnreadCount returns the last known unread count
func (s *NotificationService) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// DecrementCount lowers the count by one, never below zero
func (s *NotificationService) DecrementCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unread > 0 {
		s.unread--
	}
}

// ClearCount sets the count to zero
func (s *NotificationService) ClearCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = 0
}

// MarkRead marks one notification as read and decrements the count
func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	if !s.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if err := s.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	s.DecrementCount()
	return nil
}

// MarkAllRead marks every notification as read and clears the count
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if err := s.api.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	s.ClearCount()
	return nil
}

// IsPolling reports whether a poll loop is running
func (s *NotificationService) IsPolling() bool {
	return s.polling.Load()
}

// Poll fetches the unread count now and then every interval until ctx is
// done, calling onCount after each successful fetch. Only one poll loop may
// run at a time.
func (s *NotificationService) Poll(ctx context.Context, interval time.Duration, onCount func(int)) error {
	if interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if !s.polling.CompareAndSwap(false, true) {
		return ErrAlreadyPolling
	}
	defer s.polling.Store(false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if count, err := s.FetchUnreadCount(ctx); err == nil && onCount != nil {
			onCount(count)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
