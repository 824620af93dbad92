package documents

import (
	"bytes"
	"encoding/json"
)

// Sidecar is the JSON description written next to each blob. The ingestion
// pipeline reads it to attribute and filter search results, so the attribute
// names are a stable contract and must not change.
type Sidecar struct {
	MetadataAttributes SidecarAttributes `json:"metadataAttributes"`
}

// SidecarAttributes carries the queryable facets of one document.
type SidecarAttributes struct {
	DocumentID     string `json:"documentId"`
	OrganizationID string `json:"organizationId"`
	OwnerID        string `json:"ownerId"`
	Location       string `json:"location"`
	Category       string `json:"category,omitempty"`
	Sensitivity    int    `json:"sensitivity"`
	Extension      string `json:"extension"`
}

// NewSidecar builds the sidecar for a document record.
func NewSidecar(d Document) Sidecar {
	return Sidecar{
		MetadataAttributes: SidecarAttributes{
			DocumentID:     d.ID,
			OrganizationID: d.OrganizationID,
			OwnerID:        d.OwnerID,
			Location:       d.Location,
			Category:       d.Category,
			Sensitivity:    d.Sensitivity,
			Extension:      d.FileExtension,
		},
	}
}

// Encode renders the sidecar as indented JSON ready to store.
func (s Sidecar) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSidecar parses a stored sidecar object.
func DecodeSidecar(b []byte) (Sidecar, error) {
	var s Sidecar
	if err := json.Unmarshal(b, &s); err != nil {
		return Sidecar{}, err
	}
	return s, nil
}
