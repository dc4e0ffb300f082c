package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfl.dev/cli/internal/core/plugin"
	"mfl.dev/cli/internal/core/session"
	"mfl.dev/cli/internal/core/testfixtures"
)

type staticToken string

func (t staticToken) Token() string { return string(t) }

func newGateway(t *testing.T, handler http.HandlerFunc, token string) (*MFLAPIGateway, *testfixtures.RecordingLogger) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := &testfixtures.RecordingLogger{}
	return NewTestAPIGateway(srv.URL+"/api", staticToken(token), logger), logger
}

func TestUpdateEndpoint(t *testing.T) {
	tests := []struct {
		name          string
		initialURL    string
		newURL        string
		expectError   bool
		expectedError string
	}{
		{
			name:       "valid URL update",
			initialURL: "http://localhost:8080/api",
			newURL:     "https://mfl.example.com/api",
		},
		{
			name:          "empty URL should fail",
			initialURL:    "http://localhost:8080/api",
			newURL:        "",
			expectError:   true,
			expectedError: "endpoint cannot be empty",
		},
		{
			name:       "trailing slash is trimmed",
			initialURL: "http://localhost:8080/api",
			newURL:     "http://staging.example.com/api/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewMFLAPIGateway(tt.initialURL, nil, &testfixtures.RecordingLogger{})
			assert.Equal(t, tt.initialURL, gateway.getEndpoint())

			err := gateway.UpdateEndpoint(tt.newURL)
			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, tt.expectedError, err.Error())
				assert.Equal(t, tt.initialURL, gateway.getEndpoint())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimRight(tt.newURL, "/"), gateway.getEndpoint())
		})
	}
}

func TestListPluginsDecodesCatalogue(t *testing.T) {
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/plugins", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"id":42,"name":"Dark Mode","description":"d","version":"1.0.0","fileUrl":"https://cdn.example.com/dark.js","iconUrl":null,"authorName":"ann","downloads":12,"updatedAt":"2025-01-01T00:00:00","type":"THEME"},
			{"id":7,"name":"Pack","fileUrl":"https://cdn.example.com/pack.zip"}
		]`)
	}, "")

	descriptors, err := gateway.ListPlugins(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, plugin.ID(42), descriptors[0].ID)
	assert.Equal(t, "Dark Mode", descriptors[0].Name)
	assert.Equal(t, "", descriptors[0].IconURL)
	assert.Equal(t, "THEME", descriptors[0].Type)
	assert.Equal(t, 12, descriptors[0].Downloads)
	assert.Equal(t, "https://cdn.example.com/pack.zip", descriptors[1].FileURL)
}

func TestAuthorizationHeader(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "token attached with Token scheme", token: "abc.def.ghi", want: "Token abc.def.ghi"},
		{name: "no header without token", token: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				io.WriteString(w, `{"count":3}`)
			}, tt.token)

			count, err := gateway.UnreadNotificationCount(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, count)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoginSendsUserEnvelope(t *testing.T) {
	gateway, logger := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ann@example.com", body["user"]["email"])
		assert.Equal(t, "secret", body["user"]["password"])
		_, hasUsername := body["user"]["username"]
		assert.False(t, hasUsername)

		io.WriteString(w, `{"user":{"email":"ann@example.com","token":"jwt","username":"ann","bio":null,"image":null}}`)
	}, "")

	user, err := gateway.Login(context.Background(), "ann@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", user.Token)
	assert.Equal(t, "ann", user.Username)
	assert.Nil(t, user.Image)

	for _, e := range logger.Entries() {
		if p, ok := e.Fields["body_preview"].(string); ok {
			assert.NotContains(t, p, "secret")
		}
	}
}

func TestRegisterAndUpdateUser(t *testing.T) {
	var paths []string
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		var body map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if r.Method == http.MethodPut {
			assert.Equal(t, map[string]interface{}{"bio": "hello"}, body["user"])
		} else {
			assert.Equal(t, "ann", body["user"]["username"])
		}
		io.WriteString(w, `{"user":{"email":"ann@example.com","token":"jwt","username":"ann","bio":"hello"}}`)
	}, "jwt")

	_, err := gateway.Register(context.Background(), "ann", "ann@example.com", "secret")
	require.NoError(t, err)

	bio := "hello"
	user, err := gateway.UpdateUser(context.Background(), session.UserPatch{Bio: &bio})
	require.NoError(t, err)
	require.NotNil(t, user.Bio)
	assert.Equal(t, "hello", *user.Bio)

	assert.Equal(t, []string{"POST /api/users", "PUT /api/users"}, paths)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `[]`)
	}, "")

	descriptors, err := gateway.ListPlugins(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	stats := gateway.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulRequests)
	assert.Equal(t, int64(2), stats.FailedRequests)
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"title":"Validation Failed","status":422,"errors":{"body":["email or password is invalid"]}}`)
	}, "")

	_, err := gateway.Login(context.Background(), "ann@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
	assert.Contains(t, err.Error(), "email or password is invalid")
	assert.Equal(t, StateClosed, gateway.breaker.State())
}

func TestProblemMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "validation errors", body: `{"errors":{"body":["a","b"]}}`, want: "a; b"},
		{name: "detail", body: `{"title":"Not Found","detail":"plugin not found"}`, want: "plugin not found"},
		{name: "message", body: `{"message":"boom"}`, want: "boom"},
		{name: "title only", body: `{"title":"Forbidden"}`, want: "Forbidden"},
		{name: "plain text", body: "gateway down\n", want: "gateway down"},
		{name: "empty", body: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, problemMessage([]byte(tt.body)))
		})
	}
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, "")

	_, err := gateway.ListPlugins(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Equal(t, StateOpen, gateway.breaker.State())

	before := atomic.LoadInt32(&calls)
	_, err = gateway.ListPlugins(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestCircuitBreakerTransitions(t *testing.T) {
	cb := NewCircuitBreaker(2, 0)
	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	// Zero reset timeout moves straight to half-open.
	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	}, "")

	_, err := gateway.ListPlugins(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRecordInstallAndNotificationReads(t *testing.T) {
	var paths []string
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}, "jwt")

	ctx := context.Background()
	require.NoError(t, gateway.RecordInstall(ctx, 42))
	require.NoError(t, gateway.MarkNotificationRead(ctx, 9))
	require.NoError(t, gateway.MarkAllNotificationsRead(ctx))

	assert.Equal(t, []string{
		"POST /api/plugins/42/install",
		"PUT /api/notifications/9/read",
		"PUT /api/notifications/read-all",
	}, paths)
}

func TestPresignAndPutObject(t *testing.T) {
	var uploaded string
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		uploaded = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(storage.Close)

	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/uploads/presigned-url", r.URL.Path)
		var body presignRequestDto
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "avatar.png", body.FileName)
		assert.Equal(t, "image/png", body.ContentType)
		json.NewEncoder(w).Encode(presignResponseDto{UploadURL: storage.URL + "/bucket/avatar.png?X-Amz-Signature=abc"})
	}, "jwt")

	ctx := context.Background()
	uploadURL, err := gateway.PresignUpload(ctx, "avatar.png", "image/png")
	require.NoError(t, err)
	assert.Contains(t, uploadURL, "X-Amz-Signature")

	require.NoError(t, gateway.PutObject(ctx, uploadURL, "image/png", strings.NewReader("png-bytes"), 9))
	assert.Equal(t, "png-bytes", uploaded)
}

func TestPutObjectReportsStorageFailure(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "SignatureDoesNotMatch")
	}))
	t.Cleanup(storage.Close)

	gateway := NewTestAPIGateway("http://unused", nil, &testfixtures.RecordingLogger{})
	err := gateway.PutObject(context.Background(), storage.URL+"/x", "text/plain", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusForbidden))
}

func TestDecodeFailureIsNotRetried(t *testing.T) {
	var calls int32
	gateway, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `{not json`)
	}, "")

	_, err := gateway.ListPlugins(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
