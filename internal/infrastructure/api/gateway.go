package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
	"mfl.dev/cli/internal/core/session"
)

// UserAgent is sent with every platform request
const UserAgent = "mfl-cli/1.0.0"

// ErrCircuitOpen is returned while the circuit breaker rejects requests
var ErrCircuitOpen = errors.New("circuit breaker is open")

// HTTPError is a non-2xx response from the platform
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed when repeated
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsStatus reports whether err is an HTTPError with the given status code
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// MFLAPIGateway implements the APIGateway interface against the platform REST API
type MFLAPIGateway struct {
	endpoint    string
	tokens      ports.TokenSource
	httpClient  *http.Client
	retryPolicy *RetryPolicy
	breaker     *CircuitBreaker
	logger      ports.LoggingGateway
	stats       *APIStats
	mutex       sync.RWMutex
}

// APIStats tracks API usage statistics
type APIStats struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	AverageLatency     time.Duration `json:"average_latency"`
	LastRequestTime    time.Time     `json:"last_request_time"`
	LastError          string        `json:"last_error,omitempty"`
}

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// CircuitBreaker implements circuit breaker pattern
type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           CircuitBreakerState
	mutex           sync.RWMutex
}

// CircuitBreakerState represents the circuit breaker state
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// CanExecute returns true if the circuit breaker allows execution
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// RecordSuccess records a successful execution
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	cb.state = StateClosed
}

// RecordFailure records a failed execution
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// NewMFLAPIGateway creates a new API gateway. tokens may be nil for
// anonymous access.
func NewMFLAPIGateway(endpoint string, tokens ports.TokenSource, logger ports.LoggingGateway) *MFLAPIGateway {
	return &MFLAPIGateway{
		endpoint: strings.TrimRight(endpoint, "/"),
		tokens:   tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryPolicy: DefaultRetryPolicy(),
		breaker:     NewCircuitBreaker(5, 60*time.Second),
		logger:      logger,
		stats:       &APIStats{},
	}
}

// NewTestAPIGateway creates a new API gateway with test-friendly settings
func NewTestAPIGateway(endpoint string, tokens ports.TokenSource, logger ports.LoggingGateway) *MFLAPIGateway {
	g := NewMFLAPIGateway(endpoint, tokens, logger)
	g.httpClient.Timeout = 5 * time.Second
	g.retryPolicy = &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		Multiplier:  2.0,
	}
	g.breaker = NewCircuitBreaker(3, 5*time.Second)
	return g
}

// SetTimeout sets the per-request timeout
func (g *MFLAPIGateway) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		g.httpClient.Timeout = timeout
	}
}

// SetMaxAttempts sets how many times a retryable request is attempted
func (g *MFLAPIGateway) SetMaxAttempts(attempts int) {
	if attempts > 0 {
		g.retryPolicy.MaxAttempts = attempts
	}
}

// UpdateEndpoint safely updates the API endpoint at runtime
func (g *MFLAPIGateway) UpdateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.logger.Log(ports.LogLevelInfo, "Updating API endpoint", map[string]interface{}{
		"old_endpoint": g.endpoint,
		"new_endpoint": endpoint,
	})

	g.endpoint = strings.TrimRight(endpoint, "/")
	return nil
}

// Stats returns a snapshot of the usage statistics
func (g *MFLAPIGateway) Stats() APIStats {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return *g.stats
}

func (g *MFLAPIGateway) getEndpoint() string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.endpoint
}

func (g *MFLAPIGateway) isDebugEnabled() bool {
	return g.logger != nil && g.logger.GetLogLevel() == ports.LogLevelDebug
}

// ListPlugins returns the marketplace catalogue
func (g *MFLAPIGateway) ListPlugins(ctx context.Context) ([]plugin.Descriptor, error) {
	var descriptors []plugin.Descriptor
	if err := g.doJSON(ctx, http.MethodGet, "/plugins", nil, &descriptors); err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	return descriptors, nil
}

// RecordInstall bumps the download counter of a plugin
func (g *MFLAPIGateway) RecordInstall(ctx context.Context, id plugin.ID) error {
	if err := g.doJSON(ctx, http.MethodPost, "/plugins/"+id.String()+"/install", nil, nil); err != nil {
		return fmt.Errorf("failed to record install of plugin %s: %w", id, err)
	}
	return nil
}

// Login exchanges credentials for a user carrying a token
func (g *MFLAPIGateway) Login(ctx context.Context, email, password string) (*session.User, error) {
	req := userEnvelope[credentialsDto]{User: credentialsDto{Email: email, Password: password}}
	var resp userEnvelope[session.User]
	if err := g.doJSON(ctx, http.MethodPost, "/users/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &resp.User, nil
}

// Register creates an account and returns the new user
func (g *MFLAPIGateway) Register(ctx context.Context, username, email, password string) (*session.User, error) {
	req := userEnvelope[credentialsDto]{User: credentialsDto{Username: username, Email: email, Password: password}}
	var resp userEnvelope[session.User]
	if err := g.doJSON(ctx, http.MethodPost, "/users", req, &resp); err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return &resp.User, nil
}

// CurrentUser returns the user owning the current token
func (g *MFLAPIGateway) CurrentUser(ctx context.Context) (*session.User, error) {
	var resp userEnvelope[session.User]
	if err := g.doJSON(ctx, http.MethodGet, "/user", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &resp.User, nil
}

// UpdateUser applies a partial settings update
func (g *MFLAPIGateway) UpdateUser(ctx context.Context, patch session.UserPatch) (*session.User, error) {
	req := userEnvelope[session.UserPatch]{User: patch}
	var resp userEnvelope[session.User]
	if err := g.doJSON(ctx, http.MethodPut, "/users", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return &resp.User, nil
}

// UnreadNotificationCount returns the number of unread notifications
func (g *MFLAPIGateway) UnreadNotificationCount(ctx context.Context) (int, error) {
	var resp countDto
	if err := g.doJSON(ctx, http.MethodGet, "/notifications/count", nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to fetch notification count: %w", err)
	}
	return int(resp.Count), nil
}

// MarkNotificationRead marks one notification as read
func (g *MFLAPIGateway) MarkNotificationRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read", id)
	if err := g.doJSON(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("failed to mark notification %d as read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification as read
func (g *MFLAPIGateway) MarkAllNotificationsRead(ctx context.Context) error {
	if err := g.doJSON(ctx, http.MethodPut, "/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}

// PresignUpload requests a presigned storage URL for a file
func (g *MFLAPIGateway) PresignUpload(ctx context.Context, fileName, contentType string) (string, error) {
	req := presignRequestDto{FileName: fileName, ContentType: contentType}
	var resp presignResponseDto
	if err := g.doJSON(ctx, http.MethodPost, "/uploads/presigned-url", req, &resp); err != nil {
		return "", fmt.Errorf("failed to get upload url: %w", err)
	}
	if resp.UploadURL == "" {
		return "", fmt.Errorf("failed to get upload url: empty response")
	}
	return resp.UploadURL, nil
}

// PutObject uploads body to a presigned storage URL. The request is sent
// once; the body cannot be replayed.
func (g *MFLAPIGateway) PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", UserAgent)

	g.logHTTPRequest(req, nil)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	g.logHTTPResponse(resp, respBody, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to upload file: %w", &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))})
	}
	return nil
}

// doJSON sends a JSON request to the platform and decodes the response into out
func (g *MFLAPIGateway) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	return g.executeWithRetry(ctx, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.getEndpoint()+path, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		g.setRequestHeaders(req, payload != nil)

		g.logHTTPRequest(req, payload)

		start := time.Now()
		resp, err := g.httpClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		g.logHTTPResponse(resp, respBody, latency)
		g.updateLatency(latency)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{StatusCode: resp.StatusCode, Message: problemMessage(respBody)}
		}

		if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return &decodeError{err: err}
		}
		return nil
	})
}

// executeWithRetry executes a function with retry logic and circuit breaker
func (g *MFLAPIGateway) executeWithRetry(ctx context.Context, fn func() error) error {
	if !g.breaker.CanExecute() {
		return ErrCircuitOpen
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < g.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.calculateDelay(attempt)
			g.logger.Log(ports.LogLevelDebug, "Retrying request", map[string]interface{}{
				"attempt": attempt + 1,
				"delay":   delay,
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attempts++
		g.updateStats(true, false, "")

		err := fn()
		if err == nil {
			g.breaker.RecordSuccess()
			g.updateStats(false, true, "")
			return nil
		}

		lastErr = err
		g.updateStats(false, false, err.Error())

		if !g.shouldRetry(err) {
			// The server answered; it is reachable.
			if !isServerFault(err) {
				g.breaker.RecordSuccess()
			}
			return err
		}
		g.breaker.RecordFailure()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func (g *MFLAPIGateway) setRequestHeaders(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	if g.tokens != nil {
		if token := g.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Token "+token)
		}
	}
}

// calculateDelay calculates the delay for retry attempts
func (g *MFLAPIGateway) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(g.retryPolicy.BaseDelay) *
		float64(attempt) * g.retryPolicy.Multiplier)

	if delay > g.retryPolicy.MaxDelay {
		delay = g.retryPolicy.MaxDelay
	}

	return delay
}

// shouldRetry retries network errors and 5xx responses only
func (g *MFLAPIGateway) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	var decErr *decodeError
	if errors.As(err, &decErr) {
		return false
	}
	return true
}

func isServerFault(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Temporary()
}

func (g *MFLAPIGateway) updateStats(isAttempt, isSuccess bool, errorMsg string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if isAttempt {
		g.stats.TotalRequests++
		g.stats.LastRequestTime = time.Now()
	}

	if isSuccess {
		g.stats.SuccessfulRequests++
		g.stats.LastError = ""
	} else if !isAttempt {
		g.stats.FailedRequests++
		g.stats.LastError = errorMsg
	}
}

func (g *MFLAPIGateway) updateLatency(latency time.Duration) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.stats.AverageLatency == 0 {
		g.stats.AverageLatency = latency
	} else {
		// Simple moving average
		g.stats.AverageLatency = (g.stats.AverageLatency + latency) / 2
	}
}

func (g *MFLAPIGateway) logHTTPRequest(req *http.Request, body []byte) {
	if !g.isDebugEnabled() {
		return
	}

	fields := map[string]interface{}{
		"method":    req.Method,
		"url":       redactQuery(req.URL.String()),
		"body_size": len(body),
	}
	// Credentials never reach the log.
	if !strings.Contains(req.URL.Path, "/users") {
		fields["body_preview"] = preview(body)
	}
	g.logger.Log(ports.LogLevelDebug, "HTTP Request", fields)
}

func (g *MFLAPIGateway) logHTTPResponse(resp *http.Response, body []byte, latency time.Duration) {
	if !g.isDebugEnabled() {
		return
	}

	g.logger.Log(ports.LogLevelDebug, "HTTP Response", map[string]interface{}{
		"status_code": resp.StatusCode,
		"body_size":   len(body),
		"latency_ms":  latency.Milliseconds(),
	})
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 1000 {
		s = s[:1000] + "... (truncated)"
	}
	return s
}

func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i] + "?..."
	}
	return rawURL
}
