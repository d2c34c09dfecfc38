package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paircall/internal/core/ports"
	"paircall/pkg/config"

	"go.uber.org/zap"
)

// HTTPStore talks to a Supabase-compatible storage REST API. All object
// keys are relative to a single bucket; authentication is a static
// service token sent as a bearer.
type HTTPStore struct {
	baseURL string
	bucket  string
	token   string
	client  *http.Client
	logger  *zap.SugaredLogger
}

func NewHTTPStore(cfg *config.Config, logger *zap.SugaredLogger) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.Storage.BaseURL, "/"),
		bucket:  cfg.Storage.Bucket,
		token:   cfg.Storage.Token,
		client:  &http.Client{Timeout: cfg.Storage.Timeout},
		logger:  logger,
	}
}

type listRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
}

type listEntry struct {
	Name     string  `json:"name"`
	ID       *string `json:"id"` // nil for folder placeholders
	Metadata *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

// List returns every object under the prefix, prefix-relative names.
// The storage API lists one folder level at a time and reports
// subfolders as entries without an id, so nested sessions are walked
// recursively.
func (s *HTTPStore) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	entries, err := s.listLevel(ctx, strings.TrimRight(prefix, "/"))
	if err != nil {
		return nil, err
	}

	var infos []ports.ObjectInfo
	for _, e := range entries {
		if e.ID == nil {
			nested, err := s.List(ctx, strings.TrimRight(prefix, "/")+"/"+e.Name)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				infos = append(infos, ports.ObjectInfo{Name: e.Name + "/" + n.Name, Size: n.Size})
			}
			continue
		}

		var size int64
		if e.Metadata != nil {
			size = e.Metadata.Size
		}
		infos = append(infos, ports.ObjectInfo{Name: e.Name, Size: size})
	}
	return infos, nil
}

func (s *HTTPStore) listLevel(ctx context.Context, prefix string) ([]listEntry, error) {
	body, err := json.Marshal(listRequest{Prefix: prefix, Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list request: %w", err)
	}

	url := fmt.Sprintf("%s/object/list/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.apiError("list", resp)
	}

	var entries []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	return entries, nil
}

// Upload writes one object. Overwrite maps to the API's upsert flag.
func (s *HTTPStore) Upload(ctx context.Context, key string, data []byte, opts ports.UploadOptions) error {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.authorize(req)
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.Overwrite {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.apiError("upload", resp)
	}
	return nil
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL returns a time-limited download URL for one object.
func (s *HTTPStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(signRequest{ExpiresIn: int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("failed to marshal sign request: %w", err)
	}

	url := fmt.Sprintf("%s/object/sign/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.apiError("sign", resp)
	}

	var signed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("failed to decode sign response: %w", err)
	}
	// The API returns a path relative to the storage root.
	return s.baseURL + signed.SignedURL, nil
}

type removeRequest struct {
	Prefixes []string `json:"prefixes"`
}

// Remove deletes the given objects in one batch call.
func (s *HTTPStore) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	body, err := json.Marshal(removeRequest{Prefixes: keys})
	if err != nil {
		return fmt.Errorf("failed to marshal remove request: %w", err)
	}

	url := fmt.Sprintf("%s/object/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remove request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.apiError("remove", resp)
	}
	return nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func (s *HTTPStore) apiError(op string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("storage %s failed: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(detail)))
}
