// Package queue provides the SQS-based producer for dispatching payment
// reconciliation messages to the background worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"cprtrainer/internal/config"
	"cprtrainer/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReconcileTrigger implements types.ReconcileEnqueuer. It serializes a
// ReconciliationMessage and sends it to the reconcile queue so a background
// worker can repair payment rows the webhook handler could not update.
type ReconcileTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewReconcileTrigger creates a ReconcileTrigger with the given SQS client
// and configuration. It reads the queue URL from the AWSConfig.
func NewReconcileTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ReconcileTrigger {
	return &ReconcileTrigger{
		client:   client,
		queueURL: awsCfg.ReconcileQueueURL,
		logger:   logger,
	}
}

// Enqueue serializes the ReconciliationMessage to JSON and dispatches it to
// the reconcile queue.
func (t *ReconcileTrigger) Enqueue(ctx context.Context, msg *types.ReconciliationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeReconcileQueue,
			"failed to marshal reconciliation message",
			err,
		)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(
			types.ErrCodeReconcileQueue,
			fmt.Sprintf("failed to send reconciliation message to %s", t.queueURL),
			err,
		)
	}

	t.logger.InfoContext(ctx, "reconciliation message sent",
		"queue_url", t.queueURL,
		"checkout_session_id", msg.CheckoutSessionID,
		"event_type", msg.EventType,
		"reason", msg.Reason,
		"retry_count", msg.RetryCount,
	)

	return nil
}

var _ types.ReconcileEnqueuer = (*ReconcileTrigger)(nil)
