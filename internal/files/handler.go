// Package files serves the signed URLs minted by the local object store.
// It exists so the presign/download flow works end to end in local
// development without cloud credentials; the s3 and minio backends sign
// URLs that never touch this handler.
package files

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/shared/server/respond"
	"casedocs-backend/internal/shared/storage/object"
	"casedocs-backend/internal/shared/storage/object/local"
)

type Handler struct {
	Store *local.Store
}

func NewHandler(store *local.Store) *Handler {
	return &Handler{Store: store}
}

// RegisterRoutes mounts the signed-URL endpoints. They sit outside the
// identity middleware: the HMAC signature carried by the URL is the whole
// authorization, exactly like a cloud presigned URL.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	prefix := strings.TrimSuffix(local.FilesRoutePrefix, "/")
	r.GET(prefix+"/*key", h.download)
	r.PUT(prefix+"/*key", h.upload)
}

func (h *Handler) download(c *gin.Context) {
	key, ok := h.verified(c, http.MethodGet)
	if !ok {
		return
	}

	info, err := h.Store.Stat(c.Request.Context(), key)
	if errors.Is(err, object.ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "object not found", nil)
		return
	}
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read object", nil)
		return
	}

	rc, err := h.Store.Open(c.Request.Context(), key)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read object", nil)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, info.SizeBytes, info.ContentType, rc, nil)
}

func (h *Handler) upload(c *gin.Context) {
	key, ok := h.verified(c, http.MethodPut)
	if !ok {
		return
	}

	contentType := c.ContentType()
	if _, err := h.Store.Put(c.Request.Context(), key, contentType, c.Request.Body); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store object", nil)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) verified(c *gin.Context, method string) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		respond.Error(c, http.StatusNotFound, "not_found", "object not found", nil)
		return "", false
	}

	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		respond.Error(c, http.StatusForbidden, "forbidden", "signed url is invalid or expired", nil)
		return "", false
	}
	if err := h.Store.VerifyURL(method, key, expires, c.Query("sig")); err != nil {
		respond.Error(c, http.StatusForbidden, "forbidden", "signed url is invalid or expired", nil)
		return "", false
	}
	return key, true
}
