package documents

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func pgColumns() []string {
	return []string{
		"id", "organization_id", "owner_id", "file_name", "file_extension",
		"content_type", "size_bytes", "content_sha256", "blob_key", "location",
		"category", "expiry_date", "sensitivity", "version", "status",
		"extracted_text_key", "extracted_at", "created_at", "updated_at",
	}
}

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := Document{
		ID:             "doc-1",
		OrganizationID: "org-a",
		OwnerID:        "user-1",
		FileName:       "report.pdf",
		FileExtension:  "pdf",
		ContentType:    "application/pdf",
		SizeBytes:      2048,
		ContentSHA256:  "deadbeef",
		BlobKey:        "documents/org-a/doc-1/content/report.pdf",
		Location:       "croydon",
		Category:       "Benefits",
		Sensitivity:    3,
		Version:        1,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
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
			doc.Category,
			nil, // expiry_date
			doc.Sensitivity,
			doc.Version,
			string(StatusActive),
			doc.CreatedAt,
			doc.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateDuplicateIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Create(context.Background(), Document{ID: "doc-1", Status: StatusActive})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPGRepoGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	expiry := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(pgColumns()).AddRow(
		"doc-1", "org-a", "user-1", "report.pdf", "pdf",
		"application/pdf", int64(2048), "deadbeef", "documents/org-a/doc-1/content/report.pdf", "croydon",
		"Benefits", expiry, 3, 2, "active",
		nil, nil, now, now.Add(time.Hour),
	)
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("doc-1").
		WillReturnRows(rows)

	doc, err := repo.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.OrganizationID != "org-a" || doc.Version != 2 || doc.Status != StatusActive {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.ExpiryDate == nil || !doc.ExpiryDate.Equal(expiry) {
		t.Fatalf("expiry not mapped: %v", doc.ExpiryDate)
	}
	if doc.ExtractedTextKey != "" || doc.ExtractedAt != nil {
		t.Fatalf("null extraction columns must map to zero values: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	doc := Document{ID: "doc-1", FileName: "report.pdf", Status: StatusActive, Version: 2}

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Update(context.Background(), doc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Update(context.Background(), doc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

func TestPGRepoDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Delete(context.Background(), "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoListFiltersAndPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(pgColumns())
	for _, id := range []string{"doc-3", "doc-4", "doc-5"} {
		rows.AddRow(
			id, "org-a", "user-1", id+".pdf", "pdf",
			"application/pdf", int64(100), "", "documents/org-a/"+id+"/content/"+id+".pdf", "croydon",
			nil, nil, 3, 1, "active",
			nil, nil, now, now,
		)
	}

	// Filters appear as numbered placeholders in the order built; the final
	// two args are the size+1 lookahead limit and the offset.
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE organization_id = ").
		WithArgs("org-a", "croydon", 3, 3, 2).
		WillReturnRows(rows)

	page, err := repo.List(context.Background(), Query{
		OrganizationID: "org-a",
		Location:       "croydon",
		Sensitivity:    3,
		Page:           2,
		PageSize:       2,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Documents) != 2 {
		t.Fatalf("expected lookahead trim to 2 docs, got %d", len(page.Documents))
	}
	if !page.HasMore {
		t.Fatal("expected HasMore with a full lookahead row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE documents").
		WithArgs("failed", sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetStatus(context.Background(), "doc-1", StatusFailed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetExtraction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE documents").
		WithArgs("documents/org-a/doc-1/extracted.txt", at, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetExtraction(context.Background(), "doc-1", "documents/org-a/doc-1/extracted.txt", at); err != nil {
		t.Fatalf("SetExtraction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoOrganizations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT DISTINCT organization_id FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-a").AddRow("org-b"))

	orgs, err := repo.Organizations(context.Background())
	if err != nil {
		t.Fatalf("Organizations: %v", err)
	}
	if len(orgs) != 2 || orgs[0] != "org-a" {
		t.Fatalf("unexpected organizations %v", orgs)
	}
}
