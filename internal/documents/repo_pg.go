package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, organization_id, owner_id, file_name, file_extension, content_type, size_bytes, content_sha256, blob_key, location, category, expiry_date, sensitivity, version, status, extracted_text_key, extracted_at, created_at, updated_at`

// Create inserts a new record. A duplicate id maps to ErrConflict.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    organization_id,
    owner_id,
    file_name,
    file_extension,
    content_type,
    size_bytes,
    content_sha256,
    blob_key,
    location,
    category,
    expiry_date,
    sensitivity,
    version,
    status,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	var category sql.NullString
	if doc.Category != "" {
		category = sql.NullString{String: doc.Category, Valid: true}
	}
	var expiry sql.NullTime
	if doc.ExpiryDate != nil {
		expiry = sql.NullTime{Time: *doc.ExpiryDate, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OrganizationID,
		doc.OwnerID,
		doc.FileName,
		doc.FileExtension,
		doc.ContentType,
		doc.SizeBytes,
		doc.ContentSHA256,
		doc.BlobKey,
		doc.Location,
		category,
		expiry,
		doc.Sensitivity,
		doc.Version,
		string(doc.Status),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// Get returns a record by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Document, error) {
	query := `
SELECT ` + selectColumns + `
FROM documents
WHERE id = $1
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// Update replaces an existing record. The last committed write wins; there
// is no version predicate.
func (r *PGRepo) Update(ctx context.Context, doc Document) error {
	const query = `
UPDATE documents
SET file_name = $2,
    file_extension = $3,
    content_type = $4,
    size_bytes = $5,
    content_sha256 = $6,
    blob_key = $7,
    location = $8,
    category = $9,
    expiry_date = $10,
    sensitivity = $11,
    version = $12,
    status = $13,
    updated_at = $14
WHERE id = $1`

	var category sql.NullString
	if doc.Category != "" {
		category = sql.NullString{String: doc.Category, Valid: true}
	}
	var expiry sql.NullTime
	if doc.ExpiryDate != nil {
		expiry = sql.NullTime{Time: *doc.ExpiryDate, Valid: true}
	}

	res, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.FileName,
		doc.FileExtension,
		doc.ContentType,
		doc.SizeBytes,
		doc.ContentSHA256,
		doc.BlobKey,
		doc.Location,
		category,
		expiry,
		doc.Sensitivity,
		doc.Version,
		string(doc.Status),
		doc.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page matching the query in creation order. The filters
// and pagination run in SQL; one extra row decides HasMore.
func (r *PGRepo) List(ctx context.Context, q Query) (Page, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = 20
	}

	conditions := []string{"organization_id = $1"}
	args := []any{q.OrganizationID}
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if q.Location != "" {
		args = append(args, q.Location)
		conditions = append(conditions, fmt.Sprintf("location = $%d", len(args)))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.FileExtension != "" {
		args = append(args, q.FileExtension)
		conditions = append(conditions, fmt.Sprintf("file_extension = $%d", len(args)))
	}
	if q.Sensitivity != 0 {
		args = append(args, q.Sensitivity)
		conditions = append(conditions, fmt.Sprintf("sensitivity = $%d", len(args)))
	}

	args = append(args, size+1)
	limitPlaceholder := len(args)
	args = append(args, (page-1)*size)
	offsetPlaceholder := len(args)

	query := `
SELECT ` + selectColumns + `
FROM documents
WHERE ` + strings.Join(conditions, " AND ") + `
ORDER BY created_at ASC, id ASC
LIMIT $` + fmt.Sprint(limitPlaceholder) + ` OFFSET $` + fmt.Sprint(offsetPlaceholder)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	docs := make([]Document, 0, size)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return Page{}, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	hasMore := len(docs) > size
	if hasMore {
		docs = docs[:size]
	}
	return Page{Documents: docs, HasMore: hasMore}, nil
}

// SetStatus updates only the lifecycle status.
func (r *PGRepo) SetStatus(ctx context.Context, id string, status Status) error {
	const query = `
UPDATE documents
SET status = $1, updated_at = $2
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetExtraction records the derived-text object for a document. A replaced
// document is re-extracted, so the write is unconditional.
func (r *PGRepo) SetExtraction(ctx context.Context, id, extractedKey string, extractedAt time.Time) error {
	const query = `
UPDATE documents
SET extracted_text_key = $1, extracted_at = $2
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, extractedKey, extractedAt, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Organizations lists every organization with at least one record.
func (r *PGRepo) Organizations(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT organization_id FROM documents ORDER BY organization_id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var category sql.NullString
	var expiry sql.NullTime
	var status string
	var extractedKey sql.NullString
	var extractedAt sql.NullTime
	err := row.Scan(
		&doc.ID,
		&doc.OrganizationID,
		&doc.OwnerID,
		&doc.FileName,
		&doc.FileExtension,
		&doc.ContentType,
		&doc.SizeBytes,
		&doc.ContentSHA256,
		&doc.BlobKey,
		&doc.Location,
		&category,
		&expiry,
		&doc.Sensitivity,
		&doc.Version,
		&status,
		&extractedKey,
		&extractedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if category.Valid {
		doc.Category = category.String
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		doc.ExpiryDate = &t
	}
	doc.Status = Status(status)
	if extractedKey.Valid {
		doc.ExtractedTextKey = extractedKey.String
	}
	if extractedAt.Valid {
		t := extractedAt.Time.UTC()
		doc.ExtractedAt = &t
	}
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repo = (*PGRepo)(nil)
