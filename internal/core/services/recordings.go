package services

import (
	"context"
	"path"
	"strings"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
	"paircall/pkg/cache"

	"go.uber.org/zap"
)

// Recording is one published combined artifact with a download URL.
type Recording struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// RecordingsService lists a user's combined artifacts. Signed URLs are
// cached for their lifetime so a polling UI does not re-sign per request.
type RecordingsService struct {
	store    ports.ObjectStore
	urlCache *cache.Cache
	urlTTL   time.Duration
	ext      string
	logger   *zap.SugaredLogger
}

// DownloadTTL is how long listed artifact URLs stay valid.
const DownloadTTL = time.Hour

func NewRecordingsService(store ports.ObjectStore, ext string, logger *zap.SugaredLogger) *RecordingsService {
	return &RecordingsService{
		store:    store,
		urlCache: cache.New(DownloadTTL / 2),
		urlTTL:   DownloadTTL,
		ext:      ext,
		logger:   logger,
	}
}

// List returns the owner's combined artifacts across all capture
// sessions, each with a signed download URL.
func (s *RecordingsService) List(ctx context.Context, owner string) ([]Recording, error) {
	objects, err := s.store.List(ctx, owner+"/")
	if err != nil {
		return nil, err
	}

	recordings := make([]Recording, 0)
	for _, obj := range objects {
		base := path.Base(obj.Name)
		if !domain.IsCombinedName(base, s.ext) {
			continue
		}

		key := owner + "/" + strings.TrimPrefix(obj.Name, "/")
		url, err := s.signedURL(ctx, key)
		if err != nil {
			s.logger.Warnw("failed to sign artifact url", "key", key, "error", err)
			continue
		}

		recordings = append(recordings, Recording{
			Name: base,
			Key:  key,
			URL:  url,
			Size: obj.Size,
		})
	}
	return recordings, nil
}

func (s *RecordingsService) signedURL(ctx context.Context, key string) (string, error) {
	if cached, ok := s.urlCache.Get(key); ok {
		return cached.(string), nil
	}
	url, err := s.store.SignedURL(ctx, key, s.urlTTL)
	if err != nil {
		return "", err
	}
	s.urlCache.SetWithTTL(key, url, s.urlTTL/2)
	return url, nil
}

// Close stops the cache cleanup goroutine.
func (s *RecordingsService) Close() {
	s.urlCache.Stop()
}
