package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"casedocs-backend/internal/authz"
	"casedocs-backend/internal/extract"
	"casedocs-backend/internal/ingest"
	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/storage/object"
	"casedocs-backend/internal/shared/telemetry"
	"casedocs-backend/internal/shared/util"
)

const (
	defaultPresignTTL    = 15 * time.Minute
	defaultRetryAttempts = 3
	defaultRetryDelay    = 200 * time.Millisecond
	defaultPageSize      = 20
	maxPageSize          = 100

	extractTimeout = 2 * time.Minute
)

// Orphan-risk stages recorded when a compensation or post-commit cleanup
// fails. The reconciliation sweep picks the leftovers up.
const (
	stageBlobCompensation    = "blob_compensation"
	stageSidecarCompensation = "sidecar_compensation"
	stageOldBlobDelete       = "old_blob_delete"
	stageIndexDelete         = "index_delete"
)

// Service sequences every document workflow across the blob store, the
// metadata index and the ingestion trigger. The index record is the single
// commit point: a document exists exactly when its record does.
type Service struct {
	Repo    Repo
	Store   object.Store
	Trigger ingest.Trigger
	Rules   Rules

	PresignTTL        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	ExtractionEnabled bool
}

// CreateInput carries a new document's content and metadata.
type CreateInput struct {
	FileName string
	Content  []byte
	Metadata MetadataInput
}

// ReplaceInput carries a full update. Empty FileName keeps the current name;
// nil Content keeps the current bytes.
type ReplaceInput struct {
	FileName string
	Content  []byte
	Metadata MetadataPatch
}

// FinalizeInput commits a document whose blob arrived through a presigned
// direct upload.
type FinalizeInput struct {
	DocumentID string
	FileName   string
	Metadata   MetadataInput
}

// ListInput is the caller's view of a listing: equality filters plus
// 1-based pagination.
type ListInput struct {
	Location      string
	Category      string
	FileExtension string
	Sensitivity   int
	Page          int
	PageSize      int
}

// ListResult is one page of documents with the pagination actually applied.
type ListResult struct {
	Documents []Document
	Page      int
	PageSize  int
	HasMore   bool
}

// Create validates the input, writes the blob and its sidecar, and commits
// the index record at version 1. Failures before the commit compensate any
// objects already written; the caller never observes a half-created document.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (Document, error) {
	draft, err := s.Rules.ValidateNew(FileInput{FileName: in.FileName, SizeBytes: int64(len(in.Content))}, in.Metadata)
	if err != nil {
		return Document{}, err
	}

	now := time.Now().UTC()
	doc := Document{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		OwnerID:        actor.UserID,
		FileName:       draft.FileName,
		FileExtension:  draft.FileExtension,
		ContentType:    draft.ContentType,
		SizeBytes:      draft.SizeBytes,
		ContentSHA256:  util.SHA256Hex(in.Content),
		Location:       draft.Location,
		Category:       draft.Category,
		ExpiryDate:     draft.ExpiryDate,
		Sensitivity:    draft.Sensitivity,
		Version:        1,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	doc.BlobKey = BlobKey(doc.OrganizationID, doc.ID, doc.FileName)

	if err := s.putBlob(ctx, doc.BlobKey, doc.ContentType, in.Content); err != nil {
		return Document{}, err
	}

	if err := s.writeSidecar(ctx, doc); err != nil {
		s.compensateObject(ctx, stageBlobCompensation, doc.BlobKey, doc.ID)
		return Document{}, err
	}

	if err := s.withRetry(ctx, "index.create", func() error { return s.Repo.Create(ctx, doc) }); err != nil {
		s.compensateObject(ctx, stageSidecarCompensation, SidecarKey(doc.OrganizationID, doc.ID), doc.ID)
		s.compensateObject(ctx, stageBlobCompensation, doc.BlobKey, doc.ID)
		return Document{}, err
	}

	metrics.IncDocumentsCreated()
	ingest.Dispatch(s.Trigger, ingest.NewSignal(doc.ID, doc.OrganizationID, doc.Location, ingest.ReasonCreated))
	s.maybeExtract(doc)
	return doc, nil
}

// Get returns the record and a presigned download URL. Document bytes never
// flow through the service.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id string) (Document, string, error) {
	doc, err := s.getAuthorized(ctx, actor, id, authz.CanRead)
	if err != nil {
		return Document{}, "", err
	}
	url, err := s.Store.Presign(ctx, doc.BlobKey, s.presignTTL())
	if err != nil {
		return Document{}, "", fmt.Errorf("presign download: %w", err)
	}
	return doc, url, nil
}

// List returns the page of documents the actor may see, filters ANDed on top
// of the role scope.
func (s *Service) List(ctx context.Context, actor authz.Actor, in ListInput) (ListResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	size := in.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	scope := authz.ListScope(actor)
	q := Query{
		OrganizationID: scope.OrganizationID,
		OwnerID:        scope.OwnerID,
		Location:       in.Location,
		Category:       in.Category,
		FileExtension:  in.FileExtension,
		Sensitivity:    in.Sensitivity,
		Page:           page,
		PageSize:       size,
	}

	var result Page
	err := s.withRetry(ctx, "index.list", func() error {
		var err error
		result, err = s.Repo.List(ctx, q)
		return err
	})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Documents: result.Documents, Page: page, PageSize: size, HasMore: result.HasMore}, nil
}

// UpdateMetadata merges a partial metadata update, rewrites the sidecar, and
// commits the record at version+1.
func (s *Service) UpdateMetadata(ctx context.Context, actor authz.Actor, id string, patch MetadataPatch) (Document, error) {
	doc, err := s.getAuthorized(ctx, actor, id, authz.CanWrite)
	if err != nil {
		return Document{}, err
	}

	updated, err := s.Rules.ApplyPatch(doc, patch)
	if err != nil {
		return Document{}, err
	}
	updated.Version = doc.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	if err := s.writeSidecar(ctx, updated); err != nil {
		return Document{}, err
	}

	if err := s.withRetry(ctx, "index.update", func() error { return s.Repo.Update(ctx, updated) }); err != nil {
		s.restoreSidecar(ctx, doc)
		return Document{}, err
	}

	metrics.IncDocumentsUpdated()
	ingest.Dispatch(s.Trigger, ingest.NewSignal(updated.ID, updated.OrganizationID, updated.Location, ingest.ReasonUpdated))
	return updated, nil
}

// Replace updates metadata and optionally the content and/or file name. The
// new blob is written before the commit; the old blob is deleted only after
// it, so the document stays readable at its previous version throughout.
func (s *Service) Replace(ctx context.Context, actor authz.Actor, id string, in ReplaceInput) (Document, error) {
	doc, err := s.getAuthorized(ctx, actor, id, authz.CanWrite)
	if err != nil {
		return Document{}, err
	}

	updated, err := s.Rules.ApplyPatch(doc, in.Metadata)
	if err != nil {
		return Document{}, err
	}

	newName := in.FileName
	if newName == "" {
		newName = doc.FileName
	}

	oldKey := doc.BlobKey
	switch {
	case in.Content != nil:
		draft, err := s.Rules.ValidateFile(FileInput{FileName: newName, SizeBytes: int64(len(in.Content))})
		if err != nil {
			return Document{}, err
		}
		updated.FileName = draft.FileName
		updated.FileExtension = draft.FileExtension
		updated.ContentType = draft.ContentType
		updated.SizeBytes = draft.SizeBytes
		updated.ContentSHA256 = util.SHA256Hex(in.Content)
		updated.BlobKey = BlobKey(updated.OrganizationID, updated.ID, updated.FileName)

		if err := s.putBlob(ctx, updated.BlobKey, updated.ContentType, in.Content); err != nil {
			return Document{}, err
		}
	case newName != doc.FileName:
		draft, err := s.Rules.ValidateFile(FileInput{FileName: newName, SizeBytes: doc.SizeBytes})
		if err != nil {
			return Document{}, err
		}
		updated.FileName = draft.FileName
		updated.FileExtension = draft.FileExtension
		updated.ContentType = draft.ContentType
		updated.BlobKey = BlobKey(updated.OrganizationID, updated.ID, updated.FileName)

		if err := s.copyBlob(ctx, oldKey, updated.BlobKey, updated.ContentType); err != nil {
			return Document{}, err
		}
	}

	updated.Version = doc.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	keyChanged := updated.BlobKey != oldKey

	if err := s.writeSidecar(ctx, updated); err != nil {
		if keyChanged {
			s.compensateObject(ctx, stageBlobCompensation, updated.BlobKey, updated.ID)
		}
		return Document{}, err
	}

	if err := s.withRetry(ctx, "index.update", func() error { return s.Repo.Update(ctx, updated) }); err != nil {
		s.restoreSidecar(ctx, doc)
		if keyChanged {
			s.compensateObject(ctx, stageBlobCompensation, updated.BlobKey, updated.ID)
		}
		return Document{}, err
	}

	if keyChanged {
		if err := s.Store.Delete(ctx, oldKey); err != nil {
			metrics.IncOrphanRisk(stageOldBlobDelete)
			telemetry.Warn("documents.orphan_risk", map[string]any{
				"stage":       stageOldBlobDelete,
				"key":         oldKey,
				"document_id": updated.ID,
				"err":         err.Error(),
			})
		}
	}

	metrics.IncDocumentsUpdated()
	ingest.Dispatch(s.Trigger, ingest.NewSignal(updated.ID, updated.OrganizationID, updated.Location, ingest.ReasonUpdated))
	if in.Content != nil {
		s.maybeExtract(updated)
	}
	return updated, nil
}

// Delete removes the blob, the sidecar and any derived text, then deletes
// the index record last. Object deletions tolerate already-absent keys, so a
// failed delete can simply be retried.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id string) error {
	doc, err := s.getAuthorized(ctx, actor, id, authz.CanWrite)
	if err != nil {
		return err
	}

	if err := s.withRetry(ctx, "blob.delete", func() error { return s.Store.Delete(ctx, doc.BlobKey) }); err != nil {
		return err
	}
	if err := s.withRetry(ctx, "sidecar.delete", func() error {
		return s.Store.Delete(ctx, SidecarKey(doc.OrganizationID, doc.ID))
	}); err != nil {
		return err
	}
	if doc.ExtractedTextKey != "" {
		if err := s.withRetry(ctx, "derived.delete", func() error { return s.Store.Delete(ctx, doc.ExtractedTextKey) }); err != nil {
			return err
		}
	}

	if err := s.withRetry(ctx, "index.delete", func() error { return s.Repo.Delete(ctx, doc.ID) }); err != nil {
		// Objects are gone but the record survived. The sweep will mark it
		// failed; surface a server error, not a success.
		metrics.IncOrphanRisk(stageIndexDelete)
		telemetry.Error("documents.delete_index_failed", map[string]any{
			"document_id":     doc.ID,
			"organization_id": doc.OrganizationID,
			"err":             err.Error(),
		})
		return fmt.Errorf("delete index record: %w", err)
	}

	metrics.IncDocumentsDeleted()
	ingest.Dispatch(s.Trigger, ingest.NewSignal(doc.ID, doc.OrganizationID, doc.Location, ingest.ReasonDeleted))
	return nil
}

// Finalize commits a document whose blob was uploaded through a presigned
// URL: verify the object, validate metadata, write the sidecar, commit. A
// repeated finalize of the same id returns ErrConflict.
func (s *Service) Finalize(ctx context.Context, actor authz.Actor, in FinalizeInput) (Document, error) {
	if in.DocumentID == "" {
		return Document{}, fmt.Errorf("%w: documentId is required", ErrInvalidInput)
	}
	name, sanErr := util.SanitizeFileName(in.FileName)
	if sanErr != nil {
		return Document{}, validationErr("fileName", CodeInvalidFileName, "file name is empty or contains path segments")
	}

	key := BlobKey(actor.OrganizationID, in.DocumentID, name)

	var info object.Info
	err := s.withRetry(ctx, "blob.stat", func() error {
		var err error
		info, err = s.Store.Stat(ctx, key)
		return err
	})
	if errors.Is(err, object.ErrNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}

	draft, err := s.Rules.ValidateNew(FileInput{FileName: in.FileName, SizeBytes: info.SizeBytes}, in.Metadata)
	if err != nil {
		return Document{}, err
	}

	now := time.Now().UTC()
	doc := Document{
		ID:             in.DocumentID,
		OrganizationID: actor.OrganizationID,
		OwnerID:        actor.UserID,
		FileName:       draft.FileName,
		FileExtension:  draft.FileExtension,
		ContentType:    draft.ContentType,
		SizeBytes:      draft.SizeBytes,
		BlobKey:        key,
		Location:       draft.Location,
		Category:       draft.Category,
		ExpiryDate:     draft.ExpiryDate,
		Sensitivity:    draft.Sensitivity,
		Version:        1,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The blob belongs to the uploader until the commit: a sidecar or index
	// failure leaves it in place so the finalize can be retried, and the
	// sweep collects it if the client never comes back.
	if err := s.writeSidecar(ctx, doc); err != nil {
		return Document{}, err
	}

	if err := s.withRetry(ctx, "index.create", func() error { return s.Repo.Create(ctx, doc) }); err != nil {
		if !errors.Is(err, ErrConflict) {
			s.compensateObject(ctx, stageSidecarCompensation, SidecarKey(doc.OrganizationID, doc.ID), doc.ID)
		}
		return Document{}, err
	}

	metrics.IncDocumentsCreated()
	ingest.Dispatch(s.Trigger, ingest.NewSignal(doc.ID, doc.OrganizationID, doc.Location, ingest.ReasonCreated))
	s.maybeExtract(doc)
	return doc, nil
}

// getAuthorized loads a record and applies the access rule. Denial is
// indistinguishable from absence for the caller; the real reason is logged.
func (s *Service) getAuthorized(ctx context.Context, actor authz.Actor, id string, allowed func(authz.Actor, string, string) bool) (Document, error) {
	var doc Document
	err := s.withRetry(ctx, "index.get", func() error {
		var err error
		doc, err = s.Repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	if !allowed(actor, doc.OrganizationID, doc.OwnerID) {
		telemetry.Info("documents.access_denied", map[string]any{
			"document_id":  id,
			"document_org": doc.OrganizationID,
			"actor_id":     actor.UserID,
			"actor_org":    actor.OrganizationID,
			"actor_role":   actor.Role,
		})
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *Service) putBlob(ctx context.Context, key, contentType string, content []byte) error {
	return s.withRetry(ctx, "blob.put", func() error {
		_, err := s.Store.Put(ctx, key, contentType, bytes.NewReader(content))
		return err
	})
}

// copyBlob streams the object at srcKey to dstKey. Used by renames, where
// content is unchanged but the deterministic key moves with the file name.
func (s *Service) copyBlob(ctx context.Context, srcKey, dstKey, contentType string) error {
	return s.withRetry(ctx, "blob.copy", func() error {
		rc, err := s.Store.Open(ctx, srcKey)
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = s.Store.Put(ctx, dstKey, contentType, rc)
		return err
	})
}

func (s *Service) writeSidecar(ctx context.Context, doc Document) error {
	payload, err := NewSidecar(doc).Encode()
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return s.withRetry(ctx, "sidecar.put", func() error {
		_, err := s.Store.Put(ctx, SidecarKey(doc.OrganizationID, doc.ID), "application/json", bytes.NewReader(payload))
		return err
	})
}

// compensateObject best-effort deletes an object written before a failed
// commit. A failed compensation is orphan risk: logged, counted, never
// surfaced.
func (s *Service) compensateObject(ctx context.Context, stage, key, docID string) {
	if err := s.Store.Delete(ctx, key); err != nil {
		metrics.IncOrphanRisk(stage)
		telemetry.Warn("documents.orphan_risk", map[string]any{
			"stage":       stage,
			"key":         key,
			"document_id": docID,
			"err":         err.Error(),
		})
	}
}

// restoreSidecar rewrites the pre-update sidecar after a failed index commit
// so objects and record keep telling the same story.
func (s *Service) restoreSidecar(ctx context.Context, doc Document) {
	payload, err := NewSidecar(doc).Encode()
	if err == nil {
		_, err = s.Store.Put(ctx, SidecarKey(doc.OrganizationID, doc.ID), "application/json", bytes.NewReader(payload))
	}
	if err != nil {
		metrics.IncOrphanRisk(stageSidecarCompensation)
		telemetry.Warn("documents.orphan_risk", map[string]any{
			"stage":       stageSidecarCompensation,
			"key":         SidecarKey(doc.OrganizationID, doc.ID),
			"document_id": doc.ID,
			"err":         err.Error(),
		})
	}
}

// maybeExtract kicks off post-commit text extraction. Failures are logged
// and never change the document's version or status.
func (s *Service) maybeExtract(doc Document) {
	if !s.ExtractionEnabled || !extract.Supported(doc.FileExtension) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
		defer cancel()

		key := ExtractedTextKey(doc.OrganizationID, doc.ID)
		if _, err := extract.Run(ctx, s.Store, doc.BlobKey, key, doc.FileExtension); err != nil {
			telemetry.Warn("documents.extract_failed", map[string]any{
				"document_id": doc.ID,
				"blob_key":    doc.BlobKey,
				"err":         err.Error(),
			})
			return
		}
		if err := s.Repo.SetExtraction(ctx, doc.ID, key, time.Now().UTC()); err != nil {
			telemetry.Warn("documents.extract_record_failed", map[string]any{
				"document_id": doc.ID,
				"err":         err.Error(),
			})
		}
	}()
}

// withRetry runs fn with bounded attempts and fixed delay. Validation,
// authorization, not-found and conflict outcomes are fatal; only transient
// store and index failures go around again. Callers receive the underlying
// error, never the retry wrapper, so sentinel checks keep working.
func (s *Service) withRetry(ctx context.Context, label string, fn func() error) error {
	attempts := s.RetryAttempts
	if attempts < 1 {
		attempts = defaultRetryAttempts
	}
	delay := s.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn()
		},
		Attempts:     attempts,
		Delay:        delay,
		Clock:        clock.WallClock,
		IsFatalError: isFatal,
		NotifyFunc: func(err error, attempt int) {
			telemetry.Warn("documents.retry", map[string]any{
				"op":      label,
				"attempt": attempt,
				"err":     err.Error(),
			})
		},
	})
	if retry.IsAttemptsExceeded(err) {
		return retry.LastError(err)
	}
	return err
}

func isFatal(err error) bool {
	var verr *ValidationError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, object.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &verr)
}

func (s *Service) presignTTL() time.Duration {
	if s.PresignTTL > 0 {
		return s.PresignTTL
	}
	return defaultPresignTTL
}
