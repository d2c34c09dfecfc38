package storage

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
)

// MemoryStore is an in-process ObjectStore for tests and local runs.
// Signed URLs are plain paths under the configured base URL; the store
// itself serves them via ServeHTTP, so a httptest.Server wrapping it
// makes the URLs fetchable.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string

	// FailUpload, when set, makes Upload fail for matching keys.
	FailUpload func(key string) bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
	}
}

// SetBaseURL sets the prefix for signed URLs, typically a
// httptest.Server URL.
func (s *MemoryStore) SetBaseURL(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(base, "/")
}

// List returns every object under the prefix, prefix-relative names,
// sorted.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]ports.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var infos []ports.ObjectInfo
	for key, data := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		infos = append(infos, ports.ObjectInfo{Name: rest, Size: int64(len(data))})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *MemoryStore) Upload(_ context.Context, key string, data []byte, opts ports.UploadOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpload != nil && s.FailUpload(key) {
		return fmt.Errorf("upload of %s failed", key)
	}
	if _, exists := s.objects[key]; exists && !opts.Overwrite {
		return domain.ErrObjectExists
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[key]; !ok {
		return "", domain.ErrObjectNotFound
	}
	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Remove(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// Get returns a stored object, for test assertions.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// Keys returns all stored object keys, sorted, for test assertions.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ServeHTTP serves stored objects by path, backing the signed URLs.
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}
