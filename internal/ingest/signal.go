package ingest

import (
	"encoding/json"
	"time"
)

// Reasons carried by a Signal. Downstream consumers branch on these.
const (
	ReasonCreated = "created"
	ReasonUpdated = "updated"
	ReasonDeleted = "deleted"
)

// Signal is the payload sent to the ingestion pipeline after a document
// mutation commits.
type Signal struct {
	DocumentID     string `json:"documentId"`
	OrganizationID string `json:"organizationId"`
	Location       string `json:"location"`
	Reason         string `json:"reason"`
	OccurredAt     string `json:"occurredAt"` // RFC 3339 UTC
}

// NewSignal builds a signal stamped with the current time.
func NewSignal(documentID, organizationID, location, reason string) Signal {
	return Signal{
		DocumentID:     documentID,
		OrganizationID: organizationID,
		Location:       location,
		Reason:         reason,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

// EncodeSignal returns the JSON representation of a signal.
func EncodeSignal(sig Signal) ([]byte, error) {
	return json.Marshal(sig)
}

// DecodeSignal parses a JSON payload into a Signal.
func DecodeSignal(payload []byte) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return Signal{}, err
	}
	return sig, nil
}
