package documents

import "path"

// Object keys are pure functions of the organization, the document id, and
// (for the blob) the sanitized file name. Mutable metadata such as location
// never appears in a key, so metadata updates never move objects.

// BlobKey returns the object key holding a document's content.
func BlobKey(orgID, docID, sanitizedName string) string {
	return path.Join("documents", orgID, docID, "content", sanitizedName)
}

// SidecarKey returns the object key of the JSON description stored next to
// the blob for the ingestion pipeline.
func SidecarKey(orgID, docID string) string {
	return path.Join("documents", orgID, docID, "metadata.json")
}

// ExtractedTextKey returns the object key of the derived plain-text object.
func ExtractedTextKey(orgID, docID string) string {
	return path.Join("documents", orgID, docID, "extracted.txt")
}

// OrgPrefix returns the key prefix under which every object of an
// organization lives. The reconciliation sweep lists it.
func OrgPrefix(orgID string) string {
	return path.Join("documents", orgID) + "/"
}
