package ingest

import "context"

// Trigger delivers ingestion signals to a downstream pipeline backend.
type Trigger interface {
	Notify(ctx context.Context, sig Signal) error
}

// Noop drops every signal. Used when no pipeline is configured.
type Noop struct{}

// Notify discards the signal.
func (Noop) Notify(ctx context.Context, sig Signal) error { return nil }

var _ Trigger = Noop{}
