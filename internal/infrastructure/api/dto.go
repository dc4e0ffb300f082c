package api

import (
	"encoding/json"
	"strings"
)

// userEnvelope wraps user payloads the way the platform expects: {"user": {...}}
type userEnvelope[T any] struct {
	User T `json:"user"`
}

type credentialsDto struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type countDto struct {
	Count int64 `json:"count"`
}

type presignRequestDto struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type presignResponseDto struct {
	UploadURL string `json:"uploadUrl"`
}

// problemDto is the platform's error body (RFC 7807 problem detail)
type problemDto struct {
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Errors  struct {
		Body []string `json:"body"`
	} `json:"errors"`
}

// problemMessage extracts a human readable message from an error body
func problemMessage(body []byte) string {
	var p problemDto
	if err := json.Unmarshal(body, &p); err != nil {
		return preview([]byte(strings.TrimSpace(string(body))))
	}
	switch {
	case len(p.Errors.Body) > 0:
		return strings.Join(p.Errors.Body, "; ")
	case p.Detail != "":
		return p.Detail
	case p.Message != "":
		return p.Message
	default:
		return p.Title
	}
}

// decodeError marks a 2xx response whose body could not be decoded
type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return "failed to decode response: " + e.err.Error()
}

func (e *decodeError) Unwrap() error {
	return e.err
}
