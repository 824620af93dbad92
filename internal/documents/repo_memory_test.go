package documents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedRepo(t *testing.T, r Repo, docs ...Document) {
	t.Helper()
	for _, d := range docs {
		if err := r.Create(context.Background(), d); err != nil {
			t.Fatalf("seed %s: %v", d.ID, err)
		}
	}
}

func memDoc(id, org, owner, location, category, ext string, sensitivity int, created time.Time) Document {
	return Document{
		ID:             id,
		OrganizationID: org,
		OwnerID:        owner,
		FileName:       id + "." + ext,
		FileExtension:  ext,
		BlobKey:        BlobKey(org, id, id+"."+ext),
		SizeBytes:      100,
		Location:       location,
		Category:       category,
		Sensitivity:    sensitivity,
		Version:        1,
		Status:         StatusActive,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestMemoryRepoCRUD(t *testing.T) {
	t.Parallel()

	r := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	doc := memDoc("doc-1", "org-a", "user-1", "croydon", "Benefits", "pdf", 3, base)
	seedRepo(t, r, doc)

	if err := r.Create(ctx, doc); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate create: expected ErrConflict, got %v", err)
	}

	got, err := r.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Location != "croydon" || got.Version != 1 {
		t.Fatalf("unexpected record %+v", got)
	}

	got.Category = "Legal"
	got.Version = 2
	if err := r.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = r.Get(ctx, "doc-1")
	if got.Category != "Legal" || got.Version != 2 {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := r.Update(ctx, memDoc("ghost", "org-a", "user-1", "croydon", "", "pdf", 3, base)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: expected ErrNotFound, got %v", err)
	}

	if err := r.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.Get(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: expected ErrNotFound, got %v", err)
	}
	if err := r.Delete(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoListFilters(t *testing.T) {
	t.Parallel()

	r := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedRepo(t, r,
		memDoc("doc-1", "org-a", "user-1", "croydon", "Benefits", "pdf", 3, base),
		memDoc("doc-2", "org-a", "user-1", "croydon", "Legal", "docx", 2, base.Add(time.Minute)),
		memDoc("doc-3", "org-a", "user-2", "brixton", "Benefits", "pdf", 3, base.Add(2*time.Minute)),
		memDoc("doc-4", "org-b", "user-9", "croydon", "Benefits", "pdf", 3, base.Add(3*time.Minute)),
	)
	ctx := context.Background()

	// Organization scope alone.
	page, err := r.List(ctx, Query{OrganizationID: "org-a", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Documents) != 3 {
		t.Fatalf("expected 3 org-a docs, got %d", len(page.Documents))
	}

	// Owner scope.
	page, _ = r.List(ctx, Query{OrganizationID: "org-a", OwnerID: "user-1", Page: 1, PageSize: 10})
	if len(page.Documents) != 2 {
		t.Fatalf("expected 2 user-1 docs, got %d", len(page.Documents))
	}

	// Location facet.
	page, _ = r.List(ctx, Query{OrganizationID: "org-a", Location: "brixton", Page: 1, PageSize: 10})
	if len(page.Documents) != 1 || page.Documents[0].ID != "doc-3" {
		t.Fatalf("location filter returned %+v", page.Documents)
	}

	// Filters AND together.
	page, _ = r.List(ctx, Query{OrganizationID: "org-a", Location: "croydon", Category: "Benefits", FileExtension: "pdf", Sensitivity: 3, Page: 1, PageSize: 10})
	if len(page.Documents) != 1 || page.Documents[0].ID != "doc-1" {
		t.Fatalf("combined filters returned %+v", page.Documents)
	}

	// Empty result for a filter nothing matches.
	page, _ = r.List(ctx, Query{OrganizationID: "org-a", Category: "Housing", Page: 1, PageSize: 10})
	if len(page.Documents) != 0 || page.HasMore {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestMemoryRepoPagination(t *testing.T) {
	t.Parallel()

	r := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		seedRepo(t, r, memDoc(fmt.Sprintf("doc-%d", i), "org-a", "user-1", "croydon", "", "pdf", 3, base.Add(time.Duration(i)*time.Second)))
	}
	ctx := context.Background()

	first, err := r.List(ctx, Query{OrganizationID: "org-a", Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Documents) != 3 || !first.HasMore {
		t.Fatalf("page 1: got %d docs hasMore=%v", len(first.Documents), first.HasMore)
	}
	if first.Documents[0].ID != "doc-0" || first.Documents[2].ID != "doc-2" {
		t.Fatalf("page 1 not in creation order: %v", ids(first.Documents))
	}

	second, _ := r.List(ctx, Query{OrganizationID: "org-a", Page: 2, PageSize: 3})
	if len(second.Documents) != 3 || !second.HasMore {
		t.Fatalf("page 2: got %d docs hasMore=%v", len(second.Documents), second.HasMore)
	}

	third, _ := r.List(ctx, Query{OrganizationID: "org-a", Page: 3, PageSize: 3})
	if len(third.Documents) != 1 || third.HasMore {
		t.Fatalf("page 3: got %d docs hasMore=%v", len(third.Documents), third.HasMore)
	}

	beyond, _ := r.List(ctx, Query{OrganizationID: "org-a", Page: 9, PageSize: 3})
	if len(beyond.Documents) != 0 || beyond.HasMore {
		t.Fatalf("page beyond end: got %+v", beyond)
	}
}

func TestMemoryRepoSetStatusAndExtraction(t *testing.T) {
	t.Parallel()

	r := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedRepo(t, r, memDoc("doc-1", "org-a", "user-1", "croydon", "", "pdf", 3, base))

	if err := r.SetStatus(ctx, "doc-1", StatusFailed); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ := r.Get(ctx, "doc-1")
	if got.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", got.Status)
	}
	if got.Version != 1 {
		t.Fatalf("status change must not bump version, got %d", got.Version)
	}

	at := base.Add(time.Hour)
	if err := r.SetExtraction(ctx, "doc-1", ExtractedTextKey("org-a", "doc-1"), at); err != nil {
		t.Fatalf("set extraction: %v", err)
	}
	got, _ = r.Get(ctx, "doc-1")
	if got.ExtractedTextKey == "" || got.ExtractedAt == nil || !got.ExtractedAt.Equal(at) {
		t.Fatalf("extraction not recorded: %+v", got)
	}
	if got.Version != 1 {
		t.Fatalf("extraction must not bump version, got %d", got.Version)
	}

	if err := r.SetStatus(ctx, "ghost", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("set status missing: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoOrganizations(t *testing.T) {
	t.Parallel()

	r := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedRepo(t, r,
		memDoc("doc-1", "org-b", "u", "x", "", "pdf", 3, base),
		memDoc("doc-2", "org-a", "u", "x", "", "pdf", 3, base),
		memDoc("doc-3", "org-a", "u", "x", "", "pdf", 3, base),
	)

	orgs, err := r.Organizations(context.Background())
	if err != nil {
		t.Fatalf("organizations: %v", err)
	}
	if len(orgs) != 2 || orgs[0] != "org-a" || orgs[1] != "org-b" {
		t.Fatalf("unexpected organizations %v", orgs)
	}
}

func TestMemoryRepoRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewMemoryRepo()
	ctx := context.Background()
	expiry := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := Document{
		ID:               "doc-rt",
		OrganizationID:   "org-a",
		OwnerID:          "user-1",
		FileName:         "report.pdf",
		FileExtension:    "pdf",
		ContentType:      "application/pdf",
		SizeBytes:        4096,
		ContentSHA256:    "abc123",
		BlobKey:          BlobKey("org-a", "doc-rt", "report.pdf"),
		Location:         "croydon",
		Category:         "Benefits",
		ExpiryDate:       &expiry,
		Sensitivity:      4,
		Version:          3,
		Status:           StatusActive,
		ExtractedTextKey: ExtractedTextKey("org-a", "doc-rt"),
		ExtractedAt:      &at,
		CreatedAt:        at,
		UpdatedAt:        at.Add(time.Hour),
	}

	seedRepo(t, r, want)
	got, err := r.Get(ctx, "doc-rt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != want.ID || got.ContentSHA256 != want.ContentSHA256 || got.Version != want.Version ||
		!got.ExpiryDate.Equal(*want.ExpiryDate) || !got.ExtractedAt.Equal(*want.ExtractedAt) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
