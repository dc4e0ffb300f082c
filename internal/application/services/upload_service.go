package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mfl.dev/cli/internal/application/ports"
)

// UploadService pushes files to object storage through presigned URLs
type UploadService struct {
	api    ports.APIGateway
	logger ports.LoggingGateway
}

// NewUploadService creates a new upload service
func NewUploadService(api ports.APIGateway, logger ports.LoggingGateway) *UploadService {
	return &UploadService{api: api, logger: logger}
}

// Upload requests a presigned URL for fileName, PUTs body to it and returns
// the object URL without its signature query
func (s *UploadService) Upload(ctx context.Context, fileName, contentType string, body io.Reader, size int64) (string, error) {
	uploadURL, err := s.api.PresignUpload(ctx, fileName, contentType)
	if err != nil {
		return "", err
	}

	if err := s.api.PutObject(ctx, uploadURL, contentType, body, size); err != nil {
		return "", err
	}

	objectURL := StripQuery(uploadURL)
	s.logger.Log(ports.LogLevelInfo, "File uploaded", map[string]interface{}{
		"file": fileName,
		"size": size,
		"url":  objectURL,
	})
	return objectURL, nil
}

// UploadFile uploads the file at path, detecting its content type
func (s *UploadService) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	contentType, err := DetectContentType(path, f)
	if err != nil {
		return "", err
	}

	return s.Upload(ctx, filepath.Base(path), contentType, f, info.Size())
}

// DetectContentType guesses the MIME type of f from its extension, falling
// back to sniffing its first bytes. f is rewound afterwards.
func DetectContentType(name string, f io.ReadSeeker) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct, nil
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind %s: %w", name, err)
	}
	return http.DetectContentType(head[:n]), nil
}

// StripQuery drops everything from the first '?'
func StripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
