package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSTrigger delivers signals to an AWS SQS queue.
type SQSTrigger struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSTrigger constructs an SQS-backed trigger.
func NewSQSTrigger(ctx context.Context, region, queueURL string) (*SQSTrigger, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSTrigger{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// Notify delivers a signal to the configured SQS queue.
func (s *SQSTrigger) Notify(ctx context.Context, sig Signal) error {
	payload, err := EncodeSignal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Trigger = (*SQSTrigger)(nil)
