package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatusAllHealthy(t *testing.T) {
	svc := NewService()
	svc.Register("store", func(ctx context.Context) error { return nil })
	svc.Register("index", func(ctx context.Context) error { return nil })

	ok, report := svc.Status(context.Background())
	if !ok {
		t.Fatalf("expected healthy, got report %v", report)
	}
	if report["store"] != "ok" || report["index"] != "ok" {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestStatusReportsFailingComponent(t *testing.T) {
	svc := NewService()
	svc.Register("store", func(ctx context.Context) error { return nil })
	svc.Register("index", func(ctx context.Context) error { return errors.New("connection refused") })

	ok, report := svc.Status(context.Background())
	if ok {
		t.Fatal("expected unhealthy")
	}
	if report["store"] != "ok" {
		t.Fatalf("store should stay ok, got %q", report["store"])
	}
	if report["index"] != "connection refused" {
		t.Fatalf("unexpected index report %q", report["index"])
	}
}

func TestStatusWithoutChecks(t *testing.T) {
	ok, report := NewService().Status(context.Background())
	if !ok {
		t.Fatal("no checks should mean healthy")
	}
	if len(report) != 0 {
		t.Fatalf("unexpected report %v", report)
	}
}
