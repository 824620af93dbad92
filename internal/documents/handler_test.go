package documents

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/shared/server/middleware"
)

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newHandlerRouter(t *testing.T) (*gin.Engine, *Service, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newFakeStore()
	svc := &Service{
		Repo:          NewMemoryRepo(),
		Store:         store,
		Rules:         testRules(),
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Identity(middleware.IdentityConfig{TrustGatewayHeaders: true}))
	NewHandler(svc).RegisterRoutes(api)
	return router, svc, store
}

func doJSON(t *testing.T, router *gin.Engine, method, target string, payload any, userID, orgID, role string) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-Organization-Id", orgID)
		req.Header.Set("X-Role", role)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeDocument(t *testing.T, resp *httptest.ResponseRecorder) DocumentResponse {
	t.Helper()
	var doc DocumentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v (%s)", err, resp.Body.String())
	}
	return doc
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error: %v (%s)", err, resp.Body.String())
	}
	return env
}

func createBody(fileName, content, location string) gin.H {
	return gin.H{
		"fileName":          fileName,
		"fileContentBase64": base64.StdEncoding.EncodeToString([]byte(content)),
		"location":          location,
	}
}

func TestHandlerCreateAndGet(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
		createBody("report.pdf", "%PDF-1.7 data", "croydon"), "user-1", "org-a", "user")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	created := decodeDocument(t, resp)
	if created.DocumentID == "" || created.Version != 1 || created.Sensitivity != 3 {
		t.Fatalf("unexpected create response %+v", created)
	}
	if created.Status != "active" || created.Location != "croydon" {
		t.Fatalf("unexpected create response %+v", created)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+created.DocumentID, nil, "user-1", "org-a", "user")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	got := decodeDocument(t, resp)
	if got.DownloadURL == "" {
		t.Fatal("expected a presigned downloadUrl")
	}
	if got.DocumentID != created.DocumentID {
		t.Fatalf("expected %s, got %s", created.DocumentID, got.DocumentID)
	}
}

func TestHandlerCreateValidationDetails(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
		createBody("report.pdf", "data", ""), "user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}

	env := decodeError(t, resp)
	if env.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", env.Error.Code)
	}
	if env.Error.Details["field"] != "location" || env.Error.Details["code"] != CodeMissingLocation {
		t.Fatalf("unexpected details %v", env.Error.Details)
	}
}

func TestHandlerCreateRequiresContent(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
		gin.H{"fileName": "report.pdf", "location": "croydon"}, "user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerCreateRejectsBadBase64(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
		gin.H{"fileName": "report.pdf", "fileContentBase64": "!!not-base64!!", "location": "croydon"},
		"user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerCreateFromFileURL(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote file content"))
	}))
	defer remote.Close()

	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
		gin.H{"fileName": "remote.txt", "fileUrl": remote.URL, "location": "croydon"},
		"user-1", "org-a", "user")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	created := decodeDocument(t, resp)
	if created.SizeBytes != int64(len("remote file content")) {
		t.Fatalf("expected fetched size, got %d", created.SizeBytes)
	}
}

func TestHandlerCreateFromFileURLFailures(t *testing.T) {
	router, svc, _ := newHandlerRouter(t)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
		gin.H{"fileName": "remote.txt", "fileUrl": dead.URL, "location": "croydon"},
		"user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unreachable url: expected 400, got %d", resp.Code)
	}
	env := decodeError(t, resp)
	if env.Error.Details["code"] != CodeInvalidFileURL {
		t.Fatalf("expected %s, got %v", CodeInvalidFileURL, env.Error.Details)
	}

	resp = doJSON(t, router, http.MethodPost, "/api/v1/documents",
		gin.H{"fileName": "remote.txt", "fileUrl": "not a url", "location": "croydon"},
		"user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed url: expected 400, got %d", resp.Code)
	}

	svc.Rules = NewRules(8, []string{"txt"})
	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer big.Close()

	resp = doJSON(t, router, http.MethodPost, "/api/v1/documents",
		gin.H{"fileName": "remote.txt", "fileUrl": big.URL, "location": "croydon"},
		"user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("oversized url: expected 400, got %d", resp.Code)
	}
	env = decodeError(t, resp)
	if env.Error.Details["code"] != CodeFileTooLarge {
		t.Fatalf("expected %s, got %v", CodeFileTooLarge, env.Error.Details)
	}
}

func TestHandlerListPagingAndFilters(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	for i, loc := range []string{"croydon", "croydon", "lambeth"} {
		resp := doJSON(t, router, http.MethodPost, "/api/v1/documents",
			createBody(fmt.Sprintf("file-%d.txt", i), "data", loc), "admin-1", "org-a", "admin")
		if resp.Code != http.StatusCreated {
			t.Fatalf("seed %d: %d %s", i, resp.Code, resp.Body.String())
		}
	}

	resp := doJSON(t, router, http.MethodGet, "/api/v1/documents?pageSize=2", nil, "admin-1", "org-a", "admin")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var page ListResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page.Documents) != 2 || !page.HasMore || page.Page != 1 || page.PageSize != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/documents?location=lambeth", nil, "admin-1", "org-a", "admin")
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page.Documents) != 1 || page.Documents[0].Location != "lambeth" {
		t.Fatalf("unexpected filtered page %+v", page)
	}
}

func TestHandlerPatchMetadata(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	created := decodeDocument(t, doJSON(t, router, http.MethodPost, "/api/v1/documents",
		createBody("report.pdf", "data", "croydon"), "user-1", "org-a", "user"))

	resp := doJSON(t, router, http.MethodPatch, "/api/v1/documents/"+created.DocumentID+"/metadata",
		gin.H{"category": "Legal"}, "user-1", "org-a", "user")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	updated := decodeDocument(t, resp)
	if updated.Version != 2 || updated.Category != "Legal" {
		t.Fatalf("unexpected patch result %+v", updated)
	}

	resp = doJSON(t, router, http.MethodPatch, "/api/v1/documents/"+created.DocumentID+"/metadata",
		gin.H{"sensitivity": 9}, "user-1", "org-a", "user")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	env := decodeError(t, resp)
	if env.Error.Details["code"] != CodeInvalidSensitivity {
		t.Fatalf("expected %s, got %v", CodeInvalidSensitivity, env.Error.Details)
	}
}

func TestHandlerReplaceContent(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	created := decodeDocument(t, doJSON(t, router, http.MethodPost, "/api/v1/documents",
		createBody("report.pdf", "old content", "croydon"), "user-1", "org-a", "user"))

	resp := doJSON(t, router, http.MethodPut, "/api/v1/documents/"+created.DocumentID,
		gin.H{"fileContentBase64": base64.StdEncoding.EncodeToString([]byte("new content"))},
		"user-1", "org-a", "user")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	replaced := decodeDocument(t, resp)
	if replaced.Version != 2 {
		t.Fatalf("expected version 2, got %d", replaced.Version)
	}
	if replaced.ContentSHA256 == created.ContentSHA256 {
		t.Fatal("content hash should change")
	}
}

func TestHandlerDelete(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	created := decodeDocument(t, doJSON(t, router, http.MethodPost, "/api/v1/documents",
		createBody("report.pdf", "data", "croydon"), "user-1", "org-a", "user"))

	resp := doJSON(t, router, http.MethodDelete, "/api/v1/documents/"+created.DocumentID, nil, "user-1", "org-a", "user")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+created.DocumentID, nil, "user-1", "org-a", "user")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
	env := decodeError(t, resp)
	if env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", env.Error.Code)
	}
}

func TestHandlerCrossOrganizationLooksAbsent(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	created := decodeDocument(t, doJSON(t, router, http.MethodPost, "/api/v1/documents",
		createBody("report.pdf", "data", "croydon"), "user-1", "org-a", "user"))

	path := "/api/v1/documents/" + created.DocumentID
	checks := []struct {
		method string
		target string
		body   any
	}{
		{http.MethodGet, path, nil},
		{http.MethodPatch, path + "/metadata", gin.H{"category": "Legal"}},
		{http.MethodPut, path, gin.H{"category": "Legal"}},
		{http.MethodDelete, path, nil},
	}
	for _, check := range checks {
		resp := doJSON(t, router, check.method, check.target, check.body, "admin-9", "org-b", "admin")
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", check.method, check.target, resp.Code)
		}
	}
}

func TestHandlerFinalize(t *testing.T) {
	router, _, store := newHandlerRouter(t)

	docID := "7b51b9b4-7f9b-4be5-a6b5-0d9f0f4f2f10"
	store.seed(BlobKey("org-a", docID, "report.pdf"), "application/pdf", []byte("uploaded"))

	body := gin.H{"documentId": docID, "fileName": "report.pdf", "location": "croydon"}
	resp := doJSON(t, router, http.MethodPost, "/api/v1/documents/finalize", body, "user-1", "org-a", "user")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	doc := decodeDocument(t, resp)
	if doc.DocumentID != docID || doc.Version != 1 {
		t.Fatalf("unexpected finalize response %+v", doc)
	}

	resp = doJSON(t, router, http.MethodPost, "/api/v1/documents/finalize", body, "user-1", "org-a", "user")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}
	env := decodeError(t, resp)
	if env.Error.Code != "conflict" {
		t.Fatalf("expected conflict, got %q", env.Error.Code)
	}
}

func TestHandlerRequiresIdentity(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/api/v1/documents", nil, "", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestHandlerUnknownRoleIsForbidden(t *testing.T) {
	router, _, _ := newHandlerRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/api/v1/documents", nil, "user-1", "org-a", "root")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
