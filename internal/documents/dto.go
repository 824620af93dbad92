package documents

import "time"

// DocumentResponse is the outward-facing representation of a document record.
type DocumentResponse struct {
	DocumentID     string     `json:"documentId"`
	OrganizationID string     `json:"organizationId"`
	OwnerID        string     `json:"ownerId"`
	FileName       string     `json:"fileName"`
	FileExtension  string     `json:"fileExtension"`
	ContentType    string     `json:"contentType"`
	SizeBytes      int64      `json:"sizeBytes"`
	ContentSHA256  string     `json:"contentSha256,omitempty"`
	Location       string     `json:"location"`
	Category       string     `json:"category,omitempty"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
	Sensitivity    int        `json:"sensitivity"`
	Version        int        `json:"version"`
	Status         string     `json:"status"`
	ExtractedAt    *time.Time `json:"extractedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DownloadURL    string     `json:"downloadUrl,omitempty"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:     doc.ID,
		OrganizationID: doc.OrganizationID,
		OwnerID:        doc.OwnerID,
		FileName:       doc.FileName,
		FileExtension:  doc.FileExtension,
		ContentType:    doc.ContentType,
		SizeBytes:      doc.SizeBytes,
		ContentSHA256:  doc.ContentSHA256,
		Location:       doc.Location,
		Category:       doc.Category,
		ExpiryDate:     doc.ExpiryDate,
		Sensitivity:    doc.Sensitivity,
		Version:        doc.Version,
		Status:         string(doc.Status),
		ExtractedAt:    doc.ExtractedAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func toResponseWithURL(doc Document, downloadURL string) DocumentResponse {
	resp := toResponse(doc)
	resp.DownloadURL = downloadURL
	return resp
}

// ListResponse is one page of documents.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Page      int                `json:"page"`
	PageSize  int                `json:"pageSize"`
	HasMore   bool               `json:"hasMore"`
}

func toListResponse(result ListResult) ListResponse {
	docs := make([]DocumentResponse, 0, len(result.Documents))
	for _, doc := range result.Documents {
		docs = append(docs, toResponse(doc))
	}
	return ListResponse{
		Documents: docs,
		Page:      result.Page,
		PageSize:  result.PageSize,
		HasMore:   result.HasMore,
	}
}

type createRequest struct {
	FileName          string `json:"fileName"`
	FileContentBase64 string `json:"fileContentBase64"`
	FileURL           string `json:"fileUrl"`
	Location          string `json:"location"`
	Category          string `json:"category"`
	ExpiryDate        string `json:"expiryDate"`
	Sensitivity       *int   `json:"sensitivity"`
}

type patchRequest struct {
	Location    *string `json:"location"`
	Category    *string `json:"category"`
	ExpiryDate  *string `json:"expiryDate"`
	Sensitivity *int    `json:"sensitivity"`
}

type replaceRequest struct {
	FileName          string  `json:"fileName"`
	FileContentBase64 string  `json:"fileContentBase64"`
	FileURL           string  `json:"fileUrl"`
	Location          *string `json:"location"`
	Category          *string `json:"category"`
	ExpiryDate        *string `json:"expiryDate"`
	Sensitivity       *int    `json:"sensitivity"`
}

type finalizeRequest struct {
	DocumentID  string `json:"documentId"`
	FileName    string `json:"fileName"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	ExpiryDate  string `json:"expiryDate"`
	Sensitivity *int   `json:"sensitivity"`
}
