package documents

import "time"

// Status is the lifecycle state of a document record.
type Status string

const (
	// StatusActive is the normal committed state; every create and update
	// commits as active.
	StatusActive Status = "active"
	// StatusProcessing marks a record whose sidecar is missing; the
	// reconciliation sweep sets it and clears it after repairing the sidecar.
	StatusProcessing Status = "processing"
	// StatusFailed marks a record whose blob is missing. Only the
	// reconciliation sweep sets it.
	StatusFailed Status = "failed"
)

// Document is the authoritative metadata record for one stored document.
// The record's existence in the index is what makes the document exist;
// blobs and sidecars without a record are garbage awaiting collection.
type Document struct {
	ID             string
	OrganizationID string
	OwnerID        string

	FileName      string
	FileExtension string // lowercase, no leading dot
	ContentType   string
	SizeBytes     int64
	ContentSHA256 string
	BlobKey       string

	Location    string
	Category    string
	ExpiryDate  *time.Time
	Sensitivity int

	Version int
	Status  Status

	ExtractedTextKey string
	ExtractedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
