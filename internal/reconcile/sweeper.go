// Package reconcile repairs drift between the metadata index and the object
// store. An interrupted operation or failed compensation can leave a record
// whose blob or sidecar is missing, or an object that no record references.
// The sweep finds and repairs all of it.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"casedocs-backend/internal/documents"
	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/storage/object"
	"casedocs-backend/internal/shared/telemetry"
)

const (
	defaultPageSize    = 200
	defaultConcurrency = 4

	storeRootPrefix = "documents/"
)

// Sweeper walks every organization and reconciles its records and objects.
// In DryRun mode it reports what it would change without touching anything.
type Sweeper struct {
	Repo        documents.Repo
	Store       object.Store
	DryRun      bool
	PageSize    int
	Concurrency int
}

// Report summarizes one sweep run.
type Report struct {
	Organizations    int   `json:"organizations"`
	RecordsScanned   int64 `json:"recordsScanned"`
	MarkedFailed     int64 `json:"markedFailed"`
	RepairedSidecars int64 `json:"repairedSidecars"`
	OrphansDeleted   int64 `json:"orphansDeleted"`
	Errors           int64 `json:"errors"`
	DryRun           bool  `json:"dryRun"`
	DurationMS       int64 `json:"durationMs"`
}

type tally struct {
	scanned          atomic.Int64
	markedFailed     atomic.Int64
	repairedSidecars atomic.Int64
	orphansDeleted   atomic.Int64
	errors           atomic.Int64
}

// Run sweeps every organization with bounded parallelism. Per-organization
// failures are counted and logged, not propagated. The returned error is only
// non-nil when the context ends or the organization list cannot be read.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	orgs, err := s.organizations(ctx)
	if err != nil {
		return Report{}, err
	}

	var t tally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, org := range orgs {
		org := org
		g.Go(func() error {
			return s.sweepOrganization(gctx, org, &t)
		})
	}
	err = g.Wait()

	report := Report{
		Organizations:    len(orgs),
		RecordsScanned:   t.scanned.Load(),
		MarkedFailed:     t.markedFailed.Load(),
		RepairedSidecars: t.repairedSidecars.Load(),
		OrphansDeleted:   t.orphansDeleted.Load(),
		Errors:           t.errors.Load(),
		DryRun:           s.DryRun,
		DurationMS:       time.Since(start).Milliseconds(),
	}
	telemetry.Info("reconcile.complete", map[string]any{
		"organizations":     report.Organizations,
		"records_scanned":   report.RecordsScanned,
		"marked_failed":     report.MarkedFailed,
		"repaired_sidecars": report.RepairedSidecars,
		"orphans_deleted":   report.OrphansDeleted,
		"errors":            report.Errors,
		"dry_run":           report.DryRun,
		"duration_ms":       report.DurationMS,
	})
	return report, err
}

// organizations unions the index's organizations with those found in the
// store, so debris in an organization whose records are all gone still gets
// collected.
func (s *Sweeper) organizations(ctx context.Context) ([]string, error) {
	orgs, err := s.Repo.Organizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	set := make(map[string]struct{}, len(orgs))
	for _, org := range orgs {
		set[org] = struct{}{}
	}

	keys, err := s.Store.List(ctx, storeRootPrefix)
	if err != nil {
		return nil, fmt.Errorf("list store keys: %w", err)
	}
	for _, key := range keys {
		if org := segmentAt(key, 1); org != "" {
			set[org] = struct{}{}
		}
	}

	merged := make([]string, 0, len(set))
	for org := range set {
		merged = append(merged, org)
	}
	sort.Strings(merged)
	return merged, nil
}

func (s *Sweeper) sweepOrganization(ctx context.Context, org string, t *tally) error {
	seen := make(map[string]struct{})
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.Repo.List(ctx, documents.Query{
			OrganizationID: org,
			Page:           page,
			PageSize:       s.pageSize(),
		})
		if err != nil {
			t.errors.Add(1)
			telemetry.Warn("reconcile.list_failed", map[string]any{
				"organization_id": org,
				"page":            page,
				"err":             err.Error(),
			})
			return nil
		}
		for _, doc := range res.Documents {
			seen[doc.ID] = struct{}{}
			s.checkRecord(ctx, doc, t)
		}
		if !res.HasMore {
			break
		}
		page++
	}

	s.collectOrphans(ctx, org, seen, t)
	return nil
}

func (s *Sweeper) checkRecord(ctx context.Context, doc documents.Document, t *tally) {
	t.scanned.Add(1)

	_, err := s.Store.Stat(ctx, doc.BlobKey)
	if errors.Is(err, object.ErrNotFound) {
		if doc.Status == documents.StatusFailed {
			return
		}
		if !s.DryRun {
			if err := s.Repo.SetStatus(ctx, doc.ID, documents.StatusFailed); err != nil {
				t.errors.Add(1)
				return
			}
			metrics.IncReconcileMarkedFailed()
		}
		t.markedFailed.Add(1)
		telemetry.Warn("reconcile.blob_missing", map[string]any{
			"document_id":     doc.ID,
			"organization_id": doc.OrganizationID,
			"blob_key":        doc.BlobKey,
			"dry_run":         s.DryRun,
		})
		return
	}
	if err != nil {
		t.errors.Add(1)
		return
	}

	sidecarKey := documents.SidecarKey(doc.OrganizationID, doc.ID)
	_, err = s.Store.Stat(ctx, sidecarKey)
	if errors.Is(err, object.ErrNotFound) {
		if !s.DryRun {
			payload, encErr := documents.NewSidecar(doc).Encode()
			if encErr != nil {
				t.errors.Add(1)
				return
			}
			if _, putErr := s.Store.Put(ctx, sidecarKey, "application/json", bytes.NewReader(payload)); putErr != nil {
				t.errors.Add(1)
				telemetry.Warn("reconcile.sidecar_put_failed", map[string]any{
					"document_id": doc.ID,
					"err":         putErr.Error(),
				})
				return
			}
			if doc.Status == documents.StatusProcessing {
				if setErr := s.Repo.SetStatus(ctx, doc.ID, documents.StatusActive); setErr != nil {
					t.errors.Add(1)
				}
			}
			metrics.IncReconcileRepairedSidecar()
		}
		t.repairedSidecars.Add(1)
		telemetry.Info("reconcile.sidecar_repaired", map[string]any{
			"document_id":     doc.ID,
			"organization_id": doc.OrganizationID,
			"dry_run":         s.DryRun,
		})
		return
	}
	if err != nil {
		t.errors.Add(1)
	}
}

func (s *Sweeper) collectOrphans(ctx context.Context, org string, seen map[string]struct{}, t *tally) {
	keys, err := s.Store.List(ctx, documents.OrgPrefix(org))
	if err != nil {
		t.errors.Add(1)
		telemetry.Warn("reconcile.store_list_failed", map[string]any{
			"organization_id": org,
			"err":             err.Error(),
		})
		return
	}

	for _, key := range keys {
		docID := segmentAt(key, 2)
		if docID == "" {
			continue
		}
		if _, ok := seen[docID]; ok {
			continue
		}
		if !s.DryRun {
			if err := s.Store.Delete(ctx, key); err != nil {
				t.errors.Add(1)
				telemetry.Warn("reconcile.orphan_delete_failed", map[string]any{
					"key": key,
					"err": err.Error(),
				})
				continue
			}
			metrics.IncReconcileOrphanDeleted()
		}
		t.orphansDeleted.Add(1)
		telemetry.Info("reconcile.orphan_collected", map[string]any{
			"organization_id": org,
			"key":             key,
			"dry_run":         s.DryRun,
		})
	}
}

func (s *Sweeper) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return defaultPageSize
}

func (s *Sweeper) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

// segmentAt returns the nth slash segment of a documents/<org>/<docID>/...
// key, or "" when the key has a different shape.
func segmentAt(key string, n int) string {
	parts := strings.Split(key, "/")
	if len(parts) <= n+1 || parts[0]+"/" != storeRootPrefix {
		return ""
	}
	return parts[n]
}
