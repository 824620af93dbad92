package documents

import (
	"context"
	"time"
)

// Query scopes and filters a list. OrganizationID is mandatory; the
// authorization layer fills it and, for non-admins, OwnerID before the query
// reaches any backend.
type Query struct {
	OrganizationID string
	OwnerID        string

	Location      string
	Category      string
	FileExtension string
	Sensitivity   int // 0 means unfiltered; valid values are 1..5

	Page     int // 1-based
	PageSize int
}

// Page is one page of list results in stable creation order.
type Page struct {
	Documents []Document
	HasMore   bool
}

// Repo is the metadata index. Creating a record is the single commit point
// that makes a document exist; deleting it is the last step that makes the
// document gone.
type Repo interface {
	// Create inserts a new record. An existing id is ErrConflict.
	Create(ctx context.Context, doc Document) error
	// Get returns a record by id regardless of tenant; authorization happens
	// above, so absence and denial can share one answer.
	Get(ctx context.Context, id string) (Document, error)
	// Update replaces the record unconditionally (last commit wins).
	Update(ctx context.Context, doc Document) error
	// Delete removes the record.
	Delete(ctx context.Context, id string) error
	// List returns one page matching the query, ordered by creation.
	// Filtering and pagination happen in the backend, never in memory on the
	// full result set.
	List(ctx context.Context, q Query) (Page, error)
	// SetStatus updates only the lifecycle status. The reconciliation sweep
	// is its only caller.
	SetStatus(ctx context.Context, id string, status Status) error
	// SetExtraction records the derived-text object without touching the
	// version.
	SetExtraction(ctx context.Context, id, extractedKey string, extractedAt time.Time) error
	// Organizations lists every organization with at least one record; the
	// reconciliation sweep iterates it.
	Organizations(ctx context.Context) ([]string, error)
}
