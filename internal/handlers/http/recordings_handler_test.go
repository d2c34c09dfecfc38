package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paircall/internal/core/ports"
	"paircall/internal/core/services"
	"paircall/internal/infrastructure/middleware"
	"paircall/internal/infrastructure/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func newRecordingsRouter(t *testing.T) (*gin.Engine, services.AuthService, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	store.SetBaseURL(srv.URL)

	recordings := services.NewRecordingsService(store, "webm", zaptest.NewLogger(t).Sugar())
	t.Cleanup(recordings.Close)

	auth := services.NewAuthService("test-secret", time.Hour)

	router := gin.New()
	NewRecordingsHandler(recordings).SetupRoutes(router, middleware.AuthMiddleware(auth))
	return router, auth, store
}

func TestListRecordingsRequiresToken(t *testing.T) {
	router, _, _ := newRecordingsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListRecordingsRejectsBadToken(t *testing.T) {
	router, _, _ := newRecordingsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListRecordingsReturnsOwnArtifacts(t *testing.T) {
	router, auth, store := newRecordingsRouter(t)
	ctx := context.Background()

	store.Upload(ctx, "alice/rec_1/part_0.webm", []byte("chunk"), ports.UploadOptions{})
	store.Upload(ctx, "alice/rec_1/combined_alice_20260829.webm", []byte("artifact"), ports.UploadOptions{})
	store.Upload(ctx, "bob/rec_2/combined_bob_20260829.webm", []byte("other"), ports.UploadOptions{})

	token, err := auth.GenerateToken("alice", "alice")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Recordings []services.Recording `json:"recordings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Recordings) != 1 {
		t.Fatalf("expected 1 recording, got %+v", resp.Recordings)
	}
	got := resp.Recordings[0]
	if got.Name != "combined_alice_20260829.webm" || got.URL == "" || got.Size != int64(len("artifact")) {
		t.Fatalf("unexpected recording %+v", got)
	}
}

func TestListRecordingsEmptyForNewUser(t *testing.T) {
	router, auth, _ := newRecordingsRouter(t)

	token, _ := auth.GenerateToken("carol", "carol")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Recordings []services.Recording `json:"recordings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Recordings) != 0 {
		t.Fatalf("expected no recordings, got %+v", resp.Recordings)
	}
}
