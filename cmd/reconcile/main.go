package main

// One-shot reconciliation sweep over the object store and the index:
//   go run ./cmd/reconcile
//   go run ./cmd/reconcile -dry-run

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"casedocs-backend/internal/bootstrap"
	"casedocs-backend/internal/shared/config"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "count repairs without performing them")
	flag.Parse()

	cfg := config.Load()
	if *dryRun {
		cfg.ReconcileDryRun = true
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := app.Sweeper.Run(ctx)
	if cerr := app.Close(context.Background()); cerr != nil {
		log.Printf("close error: %v", cerr)
	}
	if err != nil {
		log.Fatalf("sweep error: %v", err)
	}

	out, _ := json.Marshal(report)
	log.Printf("sweep complete: %s", out)
	if report.Errors > 0 {
		os.Exit(1)
	}
}
