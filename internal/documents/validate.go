package documents

import (
	"strings"
	"time"

	"casedocs-backend/internal/shared/util"
)

const (
	// DefaultSensitivity applies when a create omits the field.
	DefaultSensitivity = 3
	minSensitivity     = 1
	maxSensitivity     = 5

	expiryDateLayout = "2006-01-02"
)

var contentTypeByExtension = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"html": "text/html",
	"csv":  "text/csv",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Rules holds the configured validation limits. A zero Rules rejects
// everything; construct it with NewRules.
type Rules struct {
	MaxFileSizeBytes int64
	allowed          map[string]struct{}
}

// NewRules builds validation rules from configuration. Extensions are
// matched case-insensitively and without a leading dot.
func NewRules(maxFileSizeBytes int64, allowedExtensions []string) Rules {
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return Rules{MaxFileSizeBytes: maxFileSizeBytes, allowed: allowed}
}

// FileInput describes the incoming content of a create or replace.
type FileInput struct {
	FileName  string
	SizeBytes int64
}

// MetadataInput is the user-supplied metadata of a create. ExpiryDate is the
// raw wire value; parsing happens here so handlers stay dumb.
type MetadataInput struct {
	Location    string
	Category    string
	ExpiryDate  string
	Sensitivity *int
}

// MetadataPatch is a partial metadata update. Nil fields keep the current
// value; a non-nil empty ExpiryDate or Category clears the field.
type MetadataPatch struct {
	Location    *string
	Category    *string
	ExpiryDate  *string
	Sensitivity *int
}

// IsZero reports whether the patch changes nothing.
func (p MetadataPatch) IsZero() bool {
	return p.Location == nil && p.Category == nil && p.ExpiryDate == nil && p.Sensitivity == nil
}

// Draft is a validated, normalized create: everything the orchestrator needs
// before any storage side effect happens.
type Draft struct {
	FileName      string
	FileExtension string
	ContentType   string
	SizeBytes     int64
	Location      string
	Category      string
	ExpiryDate    *time.Time
	Sensitivity   int
}

// ValidateNew checks a create request. It is pure: a failure here guarantees
// no side effect happened anywhere.
func (r Rules) ValidateNew(file FileInput, md MetadataInput) (Draft, error) {
	name, ext, contentType, err := r.validateFile(file)
	if err != nil {
		return Draft{}, err
	}

	location, category, expiry, sensitivity, err := r.validateMetadata(md)
	if err != nil {
		return Draft{}, err
	}

	return Draft{
		FileName:      name,
		FileExtension: ext,
		ContentType:   contentType,
		SizeBytes:     file.SizeBytes,
		Location:      location,
		Category:      category,
		ExpiryDate:    expiry,
		Sensitivity:   sensitivity,
	}, nil
}

// ValidateFile checks only the file facts; the presign flow uses it before
// any metadata exists.
func (r Rules) ValidateFile(file FileInput) (Draft, error) {
	name, ext, contentType, err := r.validateFile(file)
	if err != nil {
		return Draft{}, err
	}
	return Draft{FileName: name, FileExtension: ext, ContentType: contentType, SizeBytes: file.SizeBytes}, nil
}

// ApplyPatch merges a partial metadata update onto doc and validates the
// merged result, returning the updated copy. Version, timestamps and keys
// are the orchestrator's business, not validation's.
func (r Rules) ApplyPatch(doc Document, p MetadataPatch) (Document, error) {
	md := MetadataInput{
		Location: doc.Location,
		Category: doc.Category,
	}
	if doc.ExpiryDate != nil {
		md.ExpiryDate = doc.ExpiryDate.Format(expiryDateLayout)
	}
	sensitivity := doc.Sensitivity
	md.Sensitivity = &sensitivity

	if p.Location != nil {
		md.Location = *p.Location
	}
	if p.Category != nil {
		md.Category = *p.Category
	}
	if p.ExpiryDate != nil {
		md.ExpiryDate = *p.ExpiryDate
	}
	if p.Sensitivity != nil {
		md.Sensitivity = p.Sensitivity
	}

	location, category, expiry, sens, err := r.validateMetadata(md)
	if err != nil {
		return Document{}, err
	}

	doc.Location = location
	doc.Category = category
	doc.ExpiryDate = expiry
	doc.Sensitivity = sens
	return doc, nil
}

func (r Rules) validateFile(file FileInput) (name, ext, contentType string, err error) {
	name, sanErr := util.SanitizeFileName(file.FileName)
	if sanErr != nil {
		return "", "", "", validationErr("fileName", CodeInvalidFileName, "file name is empty or contains path segments")
	}

	ext = util.FileExtension(name)
	if _, ok := r.allowed[ext]; !ok {
		return "", "", "", validationErr("fileName", CodeUnsupportedFileType, "file type %q is not supported", ext)
	}

	if file.SizeBytes <= 0 {
		return "", "", "", validationErr("file", CodeEmptyFile, "file is empty")
	}
	if file.SizeBytes > r.MaxFileSizeBytes {
		return "", "", "", validationErr("file", CodeFileTooLarge, "file exceeds the %d byte limit", r.MaxFileSizeBytes)
	}

	contentType = contentTypeByExtension[ext]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return name, ext, contentType, nil
}

func (r Rules) validateMetadata(md MetadataInput) (location, category string, expiry *time.Time, sensitivity int, err error) {
	location = strings.TrimSpace(md.Location)
	if location == "" {
		return "", "", nil, 0, validationErr("location", CodeMissingLocation, "location is required")
	}

	category = strings.TrimSpace(md.Category)

	sensitivity = DefaultSensitivity
	if md.Sensitivity != nil {
		sensitivity = *md.Sensitivity
		if sensitivity < minSensitivity || sensitivity > maxSensitivity {
			return "", "", nil, 0, validationErr("sensitivity", CodeInvalidSensitivity, "sensitivity must be between %d and %d", minSensitivity, maxSensitivity)
		}
	}

	if raw := strings.TrimSpace(md.ExpiryDate); raw != "" {
		parsed, perr := time.Parse(expiryDateLayout, raw)
		if perr != nil {
			parsed, perr = time.Parse(time.RFC3339, raw)
		}
		if perr != nil {
			return "", "", nil, 0, validationErr("expiryDate", CodeInvalidDate, "expiry date must be a valid ISO date")
		}
		parsed = parsed.UTC()
		expiry = &parsed
	}

	return location, category, expiry, sensitivity, nil
}
