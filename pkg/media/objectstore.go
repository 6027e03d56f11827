// Package media stores uploaded message attachments. The local implementation
// writes blobs under a flat directory and serves them by URL; the interface it
// satisfies is the capture pipeline's ObjectStore.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"murmur/internal/models"
	"murmur/internal/security"
)

// LocalObjectStore keeps uploads on the local filesystem.
type LocalObjectStore struct {
	dir     string
	baseURL string
	config  models.MediaConfig
}

// NewLocalObjectStore creates the upload directory and returns a store.
// baseURL is prefixed to object keys to form the public URL.
func NewLocalObjectStore(dir, baseURL string, config models.MediaConfig) (*LocalObjectStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &LocalObjectStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
	}, nil
}

// Put validates and writes one blob, returning its public URL.
func (s *LocalObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := security.ValidatePathWithinBase(key, s.dir); err != nil {
		return "", fmt.Errorf("invalid object key: %w", err)
	}
	if err := s.validateSize(contentType, int64(len(data))); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, key)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	if s.baseURL == "" {
		return "file://" + path, nil
	}
	return s.baseURL + "/" + key, nil
}

// Get reads one blob back; used by the HTTP media endpoint.
func (s *LocalObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := security.ValidatePathWithinBase(key, s.dir); err != nil {
		return nil, fmt.Errorf("invalid object key: %w", err)
	}
	return os.ReadFile(filepath.Join(s.dir, key)) // #nosec G304 - key validated above
}

func (s *LocalObjectStore) validateSize(contentType string, size int64) error {
	limitMB := s.config.MaxSizeMB.Voice
	switch {
	case strings.HasPrefix(contentType, "image/"):
		limitMB = s.config.MaxSizeMB.Image
	case strings.HasPrefix(contentType, "video/"):
		limitMB = s.config.MaxSizeMB.Video
	}
	if limitMB <= 0 {
		return nil
	}

	limit := int64(limitMB) * 1024 * 1024
	if size > limit {
		return fmt.Errorf("object of %d bytes exceeds %dMB limit for %s", size, limitMB, contentType)
	}
	return nil
}
