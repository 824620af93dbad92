package ingest

import (
	"context"
	"time"

	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/telemetry"
)

const dispatchTimeout = 10 * time.Second

// Dispatch delivers the signal on a background goroutine. Delivery failures
// are logged and counted, never returned: ingestion is advisory and must not
// fail the document operation that raised it.
func Dispatch(trigger Trigger, sig Signal) {
	if trigger == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := trigger.Notify(ctx, sig); err != nil {
			metrics.IncIngestNotifyFailed()
			telemetry.Warn("ingest.notify_failed", map[string]any{
				"document_id":     sig.DocumentID,
				"organization_id": sig.OrganizationID,
				"reason":          sig.Reason,
				"err":             err.Error(),
			})
		}
	}()
}
