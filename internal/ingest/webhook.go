package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	eventSource     = "casedocs/documents"
	eventTypePrefix = "com.casedocs.document."
)

// WebhookTrigger delivers signals as CloudEvents over HTTP.
type WebhookTrigger struct {
	client cloudevents.Client
	target string
}

// NewWebhookTrigger constructs a trigger posting to the given URL.
func NewWebhookTrigger(target string) (*WebhookTrigger, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("webhook target url is required")
	}
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("cloudevents client: %w", err)
	}
	return &WebhookTrigger{client: client, target: target}, nil
}

// Notify posts the signal as a CloudEvent typed by its reason, for example
// com.casedocs.document.created.
func (w *WebhookTrigger) Notify(ctx context.Context, sig Signal) error {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(eventSource)
	event.SetType(eventTypePrefix + sig.Reason)
	if at, err := time.Parse(time.RFC3339, sig.OccurredAt); err == nil {
		event.SetTime(at)
	}
	if err := event.SetData(cloudevents.ApplicationJSON, sig); err != nil {
		return fmt.Errorf("set event data: %w", err)
	}

	result := w.client.Send(cloudevents.ContextWithTarget(ctx, w.target), event)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("send event to %s: %w", w.target, result)
	}
	return nil
}

var _ Trigger = (*WebhookTrigger)(nil)
