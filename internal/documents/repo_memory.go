package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo for tests and local
// development. List matches the backend semantics exactly, down to the
// creation ordering and the HasMore lookahead.
type MemoryRepo struct {
	mu    sync.RWMutex
	data  map[string]Document
	order []string // ids in insertion order
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
	}
}

var _ Repo = (*MemoryRepo)(nil)

// Create inserts a new record.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return ErrConflict
	}
	r.data[doc.ID] = doc
	r.order = append(r.order, doc.ID)
	return nil
}

// Get returns a record by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Update replaces an existing record.
func (r *MemoryRepo) Update(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[doc.ID]; !ok {
		return ErrNotFound
	}
	r.data[doc.ID] = doc
	return nil
}

// Delete removes a record.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns one page matching the query in creation order.
func (r *MemoryRepo) List(ctx context.Context, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = 20
	}

	r.mu.RLock()
	matched := make([]Document, 0, len(r.order))
	for _, id := range r.order {
		doc := r.data[id]
		if matches(doc, q) {
			matched = append(matched, doc)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	offset := (page - 1) * size
	if offset >= len(matched) {
		return Page{Documents: []Document{}}, nil
	}
	end := offset + size
	hasMore := end < len(matched)
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]Document, end-offset)
	copy(out, matched[offset:end])
	return Page{Documents: out, HasMore: hasMore}, nil
}

func matches(doc Document, q Query) bool {
	if doc.OrganizationID != q.OrganizationID {
		return false
	}
	if q.OwnerID != "" && doc.OwnerID != q.OwnerID {
		return false
	}
	if q.Location != "" && doc.Location != q.Location {
		return false
	}
	if q.Category != "" && doc.Category != q.Category {
		return false
	}
	if q.FileExtension != "" && doc.FileExtension != q.FileExtension {
		return false
	}
	if q.Sensitivity != 0 && doc.Sensitivity != q.Sensitivity {
		return false
	}
	return true
}

// SetStatus updates only the lifecycle status.
func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	r.data[id] = doc
	return nil
}

// SetExtraction records the derived-text object for a document.
func (r *MemoryRepo) SetExtraction(ctx context.Context, id, extractedKey string, extractedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	doc.ExtractedTextKey = extractedKey
	doc.ExtractedAt = &extractedAt
	r.data[id] = doc
	return nil
}

// Organizations lists every organization with at least one record.
func (r *MemoryRepo) Organizations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var orgs []string
	for _, id := range r.order {
		org := r.data[id].OrganizationID
		if _, ok := seen[org]; !ok {
			seen[org] = struct{}{}
			orgs = append(orgs, org)
		}
	}
	sort.Strings(orgs)
	return orgs, nil
}
