package services

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"mfl.dev/cli/internal/core/plugin"
	"mfl.dev/cli/internal/core/session"
)

// MockAPIGateway implements ports.APIGateway for testing
type MockAPIGateway struct {
	mock.Mock
}

func (m *MockAPIGateway) ListPlugins(ctx context.Context) ([]plugin.Descriptor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]plugin.Descriptor), args.Error(1)
}

func (m *MockAPIGateway) RecordInstall(ctx context.Context, id plugin.ID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPIGateway) Login(ctx context.Context, email, password string) (*session.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.User), args.Error(1)
}

func (m *MockAPIGateway) Register(ctx context.Context, username, email, password string) (*session.User, error) {
	args := m.Called(ctx, username, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.User), args.Error(1)
}

func (m *MockAPIGateway) CurrentUser(ctx context.Context) (*session.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.User), args.Error(1)
}

func (m *MockAPIGateway) UpdateUser(ctx context.Context, patch session.UserPatch) (*session.User, error) {
	args := m.Called(ctx, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.User), args.Error(1)
}

func (m *MockAPIGateway) UnreadNotificationCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAPIGateway) MarkNotificationRead(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPIGateway) MarkAllNotificationsRead(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAPIGateway) PresignUpload(ctx context.Context, fileName, contentType string) (string, error) {
	args := m.Called(ctx, fileName, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockAPIGateway) PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	args := m.Called(ctx, uploadURL, contentType, body, size)
	return args.Error(0)
}

// stubSession is a fixed SessionProvider
type stubSession struct {
	authenticated bool
	token         string
}

func (s stubSession) Token() string         { return s.token }
func (s stubSession) IsAuthenticated() bool { return s.authenticated }
