package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/documents"
	"casedocs-backend/internal/files"
	"casedocs-backend/internal/services/health"
	"casedocs-backend/internal/shared/config"
	"casedocs-backend/internal/shared/storage/object/local"
	"casedocs-backend/internal/uploads"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := local.New(t.TempDir(), "http://localhost:8080", []byte("router-secret"))
	rules := documents.NewRules(1<<20, []string{"pdf", "txt"})
	svc := &documents.Service{
		Repo:          documents.NewMemoryRepo(),
		Store:         store,
		Rules:         rules,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}

	healthSvc := health.NewService()
	healthSvc.Register("store", func(ctx context.Context) error { return nil })

	return NewRouter(RouterDeps{
		Config: config.Config{
			TrustGatewayHeaders: true,
			CORSAllowOrigins:    []string{"http://localhost:5173"},
		},
		Documents: documents.NewHandler(svc),
		Uploads:   uploads.NewHandler(store, rules, time.Minute),
		Files:     files.NewHandler(store),
		Health:    healthSvc,
	})
}

func routerDo(router *gin.Engine, method, target string, body []byte, withIdentity bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withIdentity {
		req.Header.Set("X-User-Id", "user-1")
		req.Header.Set("X-Organization-Id", "org-a")
		req.Header.Set("X-Role", "user")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	router := newTestRouter(t)

	resp := routerDo(router, http.MethodGet, "/health", nil, false)
	if resp.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.Code)
	}
	var payload struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload.Status != "ok" || payload.Components["store"] != "ok" {
		t.Fatalf("unexpected health payload %+v", payload)
	}

	resp = routerDo(router, http.MethodGet, "/metrics", nil, false)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.Code)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	router := newTestRouter(t)

	if resp := routerDo(router, http.MethodGet, "/api/v1/documents", nil, false); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.Code)
	}
	if resp := routerDo(router, http.MethodGet, "/api/v1/documents", nil, true); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with identity, got %d", resp.Code)
	}
}

func TestMeReturnsResolvedActor(t *testing.T) {
	router := newTestRouter(t)

	resp := routerDo(router, http.MethodGet, "/api/v1/me", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var me map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me["userId"] != "user-1" || me["organizationId"] != "org-a" || me["role"] != "user" {
		t.Fatalf("unexpected identity %v", me)
	}
}

// The complete direct-upload loop, all through one router: presign, upload
// to the signed URL, finalize, then download through the signed URL the
// document endpoint hands out.
func TestDirectUploadRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	content := "minutes of the tenancy review"

	body, _ := json.Marshal(map[string]any{
		"fileName":  "minutes.txt",
		"sizeBytes": len(content),
	})
	resp := routerDo(router, http.MethodPost, "/api/v1/uploads/presign", body, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("presign: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var presigned struct {
		DocumentID string `json:"documentId"`
		UploadURL  string `json:"uploadUrl"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &presigned); err != nil {
		t.Fatalf("decode presign: %v", err)
	}

	uploadTarget := mustRequestURI(t, presigned.UploadURL)
	req := httptest.NewRequest(http.MethodPut, uploadTarget, strings.NewReader(content))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body, _ = json.Marshal(map[string]any{
		"documentId": presigned.DocumentID,
		"fileName":   "minutes.txt",
		"location":   "croydon",
	})
	resp = routerDo(router, http.MethodPost, "/api/v1/documents/finalize", body, true)
	if resp.Code != http.StatusCreated {
		t.Fatalf("finalize: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = routerDo(router, http.MethodGet, "/api/v1/documents/"+presigned.DocumentID, nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var doc struct {
		DownloadURL string `json:"downloadUrl"`
		SizeBytes   int64  `json:"sizeBytes"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.SizeBytes != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), doc.SizeBytes)
	}

	req = httptest.NewRequest(http.MethodGet, mustRequestURI(t, doc.DownloadURL), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != content {
		t.Fatalf("downloaded %q, want %q", rec.Body.String(), content)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9000":  ":9000",
		":7070": ":7070",
	}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}

func mustRequestURI(t *testing.T, raw string) string {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return parsed.Path + "?" + parsed.RawQuery
}
