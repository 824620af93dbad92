// Package uploads issues presigned PUT URLs for the direct upload flow.
// The client uploads the file body straight to the object store under the
// returned key and then calls POST /documents/finalize to commit the record.
// Until finalize succeeds the uploaded object has no index entry and is
// invisible to every read path.
package uploads

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"casedocs-backend/internal/documents"
	"casedocs-backend/internal/shared/server/middleware"
	"casedocs-backend/internal/shared/server/respond"
	"casedocs-backend/internal/shared/storage/object"
	"casedocs-backend/internal/shared/telemetry"
)

const defaultPresignTTL = 15 * time.Minute

type Handler struct {
	Store object.Store
	Rules documents.Rules
	TTL   time.Duration
}

func NewHandler(store object.Store, rules documents.Rules, ttl time.Duration) *Handler {
	return &Handler{Store: store, Rules: rules, TTL: ttl}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presign)
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	DocumentID string `json:"documentId"`
	Key        string `json:"key"`
	UploadURL  string `json:"uploadUrl"`
	ExpiresAt  string `json:"expiresAt"`
}

func (h *Handler) presign(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	// The declared size is validated here and the real size again at
	// finalize, so lying about it only wastes the client's own upload.
	draft, err := h.Rules.ValidateFile(documents.FileInput{
		FileName:  req.FileName,
		SizeBytes: req.SizeBytes,
	})
	if err != nil {
		var verr *documents.ValidationError
		if errors.As(err, &verr) {
			respond.Error(c, http.StatusBadRequest, "validation_error", verr.Message, gin.H{
				"field": verr.Field,
				"code":  verr.Code,
			})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request", nil)
		return
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = draft.ContentType
	}

	docID := uuid.NewString()
	key := documents.BlobKey(actor.OrganizationID, docID, draft.FileName)

	ttl := h.TTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}

	uploadURL, err := h.Store.PresignPut(c.Request.Context(), key, contentType, ttl)
	if err != nil {
		telemetry.Error("uploads.presign_failed", map[string]any{
			"err":         err.Error(),
			"key":         key,
			"contentType": contentType,
			"sizeBytes":   req.SizeBytes,
			"request_id":  c.GetString("requestId"),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		DocumentID: docID,
		Key:        key,
		UploadURL:  uploadURL,
		ExpiresAt:  time.Now().Add(ttl).UTC().Format(time.RFC3339),
	})
}
