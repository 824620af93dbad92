package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/shared/server/middleware"
	"casedocs-backend/internal/shared/server/respond"
	"casedocs-backend/internal/shared/telemetry"
)

const fetchTimeout = 30 * time.Second

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc   *Service
	Fetch *http.Client
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:   svc,
		Fetch: &http.Client{Timeout: fetchTimeout},
	}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.create)
	rg.GET("/documents", h.list)
	rg.POST("/documents/finalize", h.finalize)
	rg.GET("/documents/:id", h.get)
	rg.PATCH("/documents/:id/metadata", h.updateMetadata)
	rg.PUT("/documents/:id", h.replace)
	rg.DELETE("/documents/:id", h.remove)
}

func (h *Handler) create(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes())

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	content, ok := h.resolveContent(c, req.FileContentBase64, req.FileURL)
	if !ok {
		return
	}

	doc, err := h.Svc.Create(c.Request.Context(), actor, CreateInput{
		FileName: req.FileName,
		Content:  content,
		Metadata: MetadataInput{
			Location:    req.Location,
			Category:    req.Category,
			ExpiryDate:  req.ExpiryDate,
			Sensitivity: req.Sensitivity,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond.JSON(c, http.StatusCreated, toResponse(doc))
}

func (h *Handler) get(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	doc, downloadURL, err := h.Svc.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond.OK(c, toResponseWithURL(doc, downloadURL))
}

func (h *Handler) list(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	in := ListInput{
		Location:      strings.TrimSpace(c.Query("location")),
		Category:      strings.TrimSpace(c.Query("category")),
		FileExtension: strings.ToLower(strings.TrimSpace(c.Query("fileExtension"))),
	}
	if v := c.Query("sensitivity"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			in.Sensitivity = parsed
		}
	}
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			in.Page = parsed
		}
	}
	if v := c.Query("pageSize"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			in.PageSize = parsed
		}
	}

	result, err := h.Svc.List(c.Request.Context(), actor, in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond.OK(c, toListResponse(result))
}

func (h *Handler) updateMetadata(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	doc, err := h.Svc.UpdateMetadata(c.Request.Context(), actor, c.Param("id"), MetadataPatch{
		Location:    req.Location,
		Category:    req.Category,
		ExpiryDate:  req.ExpiryDate,
		Sensitivity: req.Sensitivity,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond.OK(c, toResponse(doc))
}

func (h *Handler) replace(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes())

	var req replaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	var content []byte
	if strings.TrimSpace(req.FileContentBase64) != "" || strings.TrimSpace(req.FileURL) != "" {
		var ok bool
		content, ok = h.resolveContent(c, req.FileContentBase64, req.FileURL)
		if !ok {
			return
		}
	}

	doc, err := h.Svc.Replace(c.Request.Context(), actor, c.Param("id"), ReplaceInput{
		FileName: strings.TrimSpace(req.FileName),
		Content:  content,
		Metadata: MetadataPatch{
			Location:    req.Location,
			Category:    req.Category,
			ExpiryDate:  req.ExpiryDate,
			Sensitivity: req.Sensitivity,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond.OK(c, toResponse(doc))
}

func (h *Handler) remove(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	if err := h.Svc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	respond.NoContent(c)
}

func (h *Handler) finalize(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	doc, err := h.Svc.Finalize(c.Request.Context(), actor, FinalizeInput{
		DocumentID: strings.TrimSpace(req.DocumentID),
		FileName:   req.FileName,
		Metadata: MetadataInput{
			Location:    req.Location,
			Category:    req.Category,
			ExpiryDate:  req.ExpiryDate,
			Sensitivity: req.Sensitivity,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond.JSON(c, http.StatusCreated, toResponse(doc))
}

// resolveContent produces the document bytes from either an inline base64
// body or a remote URL fetched server-side. On failure it writes the error
// response and returns false.
func (h *Handler) resolveContent(c *gin.Context, contentBase64, fileURL string) ([]byte, bool) {
	contentBase64 = strings.TrimSpace(contentBase64)
	fileURL = strings.TrimSpace(fileURL)

	switch {
	case contentBase64 != "":
		content, err := base64.StdEncoding.DecodeString(contentBase64)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "fileContentBase64 is not valid base64", nil)
			return nil, false
		}
		return content, true
	case fileURL != "":
		content, err := h.fetchRemote(c.Request.Context(), fileURL)
		if err != nil {
			h.respondError(c, err)
			return nil, false
		}
		return content, true
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "either fileContentBase64 or fileUrl is required", nil)
		return nil, false
	}
}

// fetchRemote downloads the content behind fileUrl with the configured size
// cap. Every failure mode is a validation problem from the caller's point of
// view; the service never proxies arbitrary fetch errors.
func (h *Handler) fetchRemote(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, validationErr("fileUrl", CodeInvalidFileURL, "fileUrl must be an absolute http(s) URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, validationErr("fileUrl", CodeInvalidFileURL, "fileUrl must be an absolute http(s) URL")
	}

	resp, err := h.Fetch.Do(req)
	if err != nil {
		return nil, validationErr("fileUrl", CodeInvalidFileURL, "unable to fetch fileUrl")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, validationErr("fileUrl", CodeInvalidFileURL, "fileUrl returned status %d", resp.StatusCode)
	}

	maxBytes := h.Svc.Rules.MaxFileSizeBytes
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, validationErr("fileUrl", CodeInvalidFileURL, "unable to fetch fileUrl")
	}
	if int64(len(content)) > maxBytes {
		return nil, validationErr("file", CodeFileTooLarge, "file exceeds the %d byte limit", maxBytes)
	}
	return content, nil
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Message, gin.H{
			"field": verr.Field,
			"code":  verr.Code,
		})
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "document already exists", nil)
	default:
		telemetry.Error("documents.request_failed", map[string]any{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"err":    err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed, please retry", nil)
	}
}

// maxBodyBytes caps request bodies: base64 inflates content by a third, plus
// a little room for the metadata fields.
func (h *Handler) maxBodyBytes() int64 {
	return (h.Svc.Rules.MaxFileSizeBytes*4)/3 + 64<<10
}
