// Package memblob is an in-memory blob.BlobStore used by tests: it stores
// payloads in a map, reports scripted progress fractions and can be told to
// fail specific paths.
package memblob

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/lamberthyl/chatsync/internal/blob"
)

type Store struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Steps are the progress fractions reported per upload. Defaults to
	// 0.5 then 1.0.
	Steps []float64

	// FailPrefix makes any Put against a matching path fail.
	FailPrefix string
}

func New() *Store {
	return &Store{
		objects: map[string][]byte{},
		Steps:   []float64{0.5, 1.0},
	}
}

// Object returns a stored payload, for assertions.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	return b, ok
}

func (s *Store) put(path string, data []byte, onProgress blob.ProgressFunc) error {
	if s.FailPrefix != "" && strings.HasPrefix(path, s.FailPrefix) {
		return fmt.Errorf("memblob: scripted failure for %s", path)
	}
	for _, f := range s.Steps {
		if onProgress != nil {
			onProgress(f)
		}
	}
	s.mu.Lock()
	s.objects[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *Store) PutBytes(_ context.Context, path string, data []byte, onProgress blob.ProgressFunc) error {
	return s.put(path, data, onProgress)
}

func (s *Store) PutFile(_ context.Context, path string, localPath string, onProgress blob.ProgressFunc) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("memblob: read %s: %w", localPath, err)
	}
	return s.put(path, data, onProgress)
}

func (s *Store) DownloadURL(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return "", fmt.Errorf("memblob: no object at %s", path)
	}
	return "mem://" + path, nil
}

var _ blob.BlobStore = (*Store)(nil)
