package ports

import (
	"context"
	"io"

	"mfl.dev/cli/internal/core/plugin"
	"mfl.dev/cli/internal/core/session"
)

// APIGateway defines the interface for communicating with the platform API
type APIGateway interface {
	// ListPlugins returns the marketplace catalogue
	ListPlugins(ctx context.Context) ([]plugin.Descriptor, error)

	// RecordInstall bumps the download counter of a plugin
	RecordInstall(ctx context.Context, id plugin.ID) error

	// Login exchanges credentials for a user carrying a token
	Login(ctx context.Context, email, password string) (*session.User, error)

	// Register creates an account and returns the new user
	Register(ctx context.Context, username, email, password string) (*session.User, error)

	// CurrentUser returns the user owning the current token
	CurrentUser(ctx context.Context) (*session.User, error)

	// UpdateUser applies a partial settings update
	UpdateUser(ctx context.Context, patch session.UserPatch) (*session.User, error)

	// UnreadNotificationCount returns the number of unread notifications
	UnreadNotificationCount(ctx context.Context) (int, error)

	// MarkNotificationRead marks one notification as read
	MarkNotificationRead(ctx context.Context, id int64) error

	// MarkAllNotificationsRead marks every notification as read
	MarkAllNotificationsRead(ctx context.Context) error

	// PresignUpload requests a presigned storage URL for a file
	PresignUpload(ctx context.Context, fileName, contentType string) (string, error)

	// PutObject uploads body to a presigned storage URL
	PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error
}

// TokenSource supplies the bearer token attached to API requests
type TokenSource interface {
	Token() string
}

// SessionProvider is the authentication state consumed by command guards
type SessionProvider interface {
	TokenSource

	// IsAuthenticated reports whether a user is signed in
	IsAuthenticated() bool
}

// ScriptLoader attaches and detaches plugin scripts in the running page
type ScriptLoader interface {
	// Attach injects the script for rec. It is a no-op when the script is
	// already present or rec points at an archive.
	Attach(rec plugin.Record) error

	// Detach removes the script for id and reloads the page. It is a no-op
	// when no script is present.
	Detach(id plugin.ID)

	// Reload discards every piece of in-page state and restarts the page
	Reload()

	// HasScript reports whether the script for id is present
	HasScript(id plugin.ID) bool
}

// Confirmer asks the user to approve a destructive action
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// LoggingGateway defines the interface for logging operations
type LoggingGateway interface {
	// Log logs a message with the specified level
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError logs an error
	LogError(err error, message string, fields map[string]interface{})

	// SetLogLevel sets the logging level
	SetLogLevel(level LogLevel)

	// GetLogLevel returns the current logging level
	GetLogLevel() LogLevel
}

// LogLevel defines the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Rank orders levels from most to least verbose
func (l LogLevel) Rank() int {
	switch l {
	case LogLevelDebug:
		return 0
	case LogLevelInfo:
		return 1
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	default:
		return 1
	}
}
