// Package workerproc holds the queue-message handling shared by the
// long-running worker and the Lambda worker. A message body is an
// ingestion signal; processing one derives plain text from the
// document's blob and records the derived object on the index.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"casedocs-backend/internal/documents"
	"casedocs-backend/internal/extract"
	"casedocs-backend/internal/ingest"
	"casedocs-backend/internal/shared/storage/object"
	"casedocs-backend/internal/shared/telemetry"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingDocumentID indicates a signal missing the document id.
type ErrMissingDocumentID struct {
	Meta   MessageMeta
	Reason string
}

func (e ErrMissingDocumentID) Error() string { return "missing document id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	DocumentID string
	Reason     string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process signal"
	}
	return "process signal: " + e.Err.Error()
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (ingest.Signal, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return ingest.Signal{}, meta, ErrEmptyBody{Meta: meta}
	}

	sig, err := ingest.DecodeSignal([]byte(body))
	if err != nil {
		return ingest.Signal{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(sig.DocumentID) == "" {
		return sig, meta, ErrMissingDocumentID{Meta: meta, Reason: sig.Reason}
	}
	return sig, meta, nil
}

type parsedSignalKey struct{}

// WithParsedSignal stores a decoded signal in the context for reuse.
func WithParsedSignal(ctx context.Context, sig ingest.Signal) context.Context {
	return context.WithValue(ctx, parsedSignalKey{}, sig)
}

func parsedSignalFromContext(ctx context.Context) (ingest.Signal, bool) {
	if ctx == nil {
		return ingest.Signal{}, false
	}
	sig, ok := ctx.Value(parsedSignalKey{}).(ingest.Signal)
	return sig, ok
}

// SignalProcessor handles one decoded ingestion signal.
type SignalProcessor interface {
	ProcessSignal(ctx context.Context, sig ingest.Signal) error
}

// Extractor runs text extraction for create and update signals and
// collects the derived object for delete signals.
type Extractor struct {
	Repo  documents.Repo
	Store object.Store
}

// ProcessSignal derives plain text for the signalled document. A nil
// return means the message is done and can leave the queue; an error
// means the message should be redelivered. Conditions a redelivery
// cannot fix, a record that is gone or a blob the sweep will deal with,
// are logged and acknowledged.
func (p *Extractor) ProcessSignal(ctx context.Context, sig ingest.Signal) error {
	if sig.Reason == ingest.ReasonDeleted {
		// The API deletes the derived object when the record still
		// carries its key. A delete racing an in-flight extraction can
		// leave one behind, so the worker collects it here too.
		key := documents.ExtractedTextKey(sig.OrganizationID, sig.DocumentID)
		if err := p.Store.Delete(ctx, key); err != nil {
			return ErrProcess{DocumentID: sig.DocumentID, Reason: sig.Reason, Err: err}
		}
		return nil
	}

	doc, err := p.Repo.Get(ctx, sig.DocumentID)
	if errors.Is(err, documents.ErrNotFound) {
		telemetry.Info("worker.extract.record_gone", map[string]any{
			"document_id": sig.DocumentID,
			"reason":      sig.Reason,
		})
		return nil
	}
	if err != nil {
		return ErrProcess{DocumentID: sig.DocumentID, Reason: sig.Reason, Err: err}
	}

	if doc.Status == documents.StatusFailed {
		return nil
	}
	if !extract.Supported(doc.FileExtension) {
		return nil
	}

	key := documents.ExtractedTextKey(doc.OrganizationID, doc.ID)
	if _, err := extract.Run(ctx, p.Store, doc.BlobKey, key, doc.FileExtension); err != nil {
		if errors.Is(err, object.ErrNotFound) {
			// The reconciliation sweep owns records with missing blobs.
			telemetry.Warn("worker.extract.blob_missing", map[string]any{
				"document_id": doc.ID,
				"blob_key":    doc.BlobKey,
			})
			return nil
		}
		if errors.Is(err, extract.ErrUnsupported) {
			return nil
		}
		return ErrProcess{DocumentID: doc.ID, Reason: sig.Reason, Err: err}
	}

	if err := p.Repo.SetExtraction(ctx, doc.ID, key, time.Now().UTC()); err != nil {
		return ErrProcess{DocumentID: doc.ID, Reason: sig.Reason, Err: err}
	}
	return nil
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, proc SignalProcessor, body string) error {
	if proc == nil {
		return errors.New("signal processor not configured")
	}

	sig, ok := parsedSignalFromContext(ctx)
	if !ok {
		var err error
		sig, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(sig.DocumentID) == "" {
		return ErrMissingDocumentID{Meta: ComputeMeta(body), Reason: sig.Reason}
	}

	if err := proc.ProcessSignal(ctx, sig); err != nil {
		var procErr ErrProcess
		if errors.As(err, &procErr) {
			return err
		}
		return ErrProcess{DocumentID: sig.DocumentID, Reason: sig.Reason, Err: err}
	}
	return nil
}
