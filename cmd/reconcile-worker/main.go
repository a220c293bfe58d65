// Package main is the entrypoint for the Reconcile Worker Lambda function.
//
// The Reconcile Worker consumes messages from the Reconciliation SQS Queue.
// Each message names a Stripe Checkout Session whose database state may have
// drifted from the gateway (a provisioning failure during webhook handling, a
// payment row that could not be written, or a lost webhook). The worker
// re-fetches the session from Stripe and replays the appropriate settlement
// path, so queue redelivery eventually converges the database.
//
// An EventBridge schedule can also target the queue with a {"action":"sweep"}
// body; the worker then scans for payments stuck in pending and reconciles
// each against the gateway.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load service configuration (SSM-backed secrets outside local).
//  3. Connect the PostgreSQL pool and repositories.
//  4. Initialize the Stripe gateway client.
//  5. Initialize SQS client and reconcile trigger for re-queuing.
//  6. Register handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cprtrainer/internal/config"
	"cprtrainer/internal/db"
	"cprtrainer/internal/external"
	"cprtrainer/internal/provisioning"
	"cprtrainer/internal/queue"
	"cprtrainer/internal/types"
)

// sweepOlderThan is how long a payment must sit in pending before the
// scheduled sweep treats it as stale. Checkout sessions expire after 24
// hours, so anything older has either settled or expired at the gateway.
const sweepOlderThan = 24 * time.Hour

// sweepLimit bounds the number of stale payments examined per sweep run so a
// single invocation stays well inside the Lambda timeout.
const sweepLimit = 100

// workerCommand is the envelope for non-reconciliation control messages, such
// as the scheduled sweep trigger.
type workerCommand struct {
	Action string `json:"action"`
}

// Handler holds the dependencies for the reconcile worker Lambda handler.
type Handler struct {
	reconciler *provisioning.Reconciler
	logger     *slog.Logger
}

// Handle processes an SQS event containing one or more reconciliation
// messages. Each message is processed independently. Lambda SQS integration
// uses partial batch responses: messages that fail processing are returned in
// batchItemFailures so SQS retries only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage handles a single SQS message. A message is either a
// reconciliation request for a specific checkout session or a sweep command.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var cmd workerCommand
	if err := json.Unmarshal([]byte(record.Body), &cmd); err == nil && cmd.Action == "sweep" {
		return h.runSweep(ctx)
	}

	var msg types.ReconciliationMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal reconciliation message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure - do not retry (return nil to ACK).
		return nil
	}
	if msg.CheckoutSessionID == "" {
		h.logger.Error("reconciliation message missing checkout session id",
			"message_id", record.MessageId,
		)
		return nil
	}

	logger := h.logger.With(
		"checkout_session_id", msg.CheckoutSessionID,
		"event_type", msg.EventType,
		"reason", msg.Reason,
		"retry_count", msg.RetryCount,
		"request_id", msg.RequestID,
	)
	logger.InfoContext(ctx, "reconciling checkout session")

	if err := h.reconciler.Reconcile(ctx, &msg); err != nil {
		return fmt.Errorf("reconcile session %s: %w", msg.CheckoutSessionID, err)
	}

	logger.InfoContext(ctx, "checkout session reconciled")
	return nil
}

// runSweep scans for payments stuck in pending and reconciles each against
// the gateway.
func (h *Handler) runSweep(ctx context.Context) error {
	checked, err := h.reconciler.SweepStalePending(ctx, sweepOlderThan, sweepLimit)
	if err != nil {
		return fmt.Errorf("sweep stale pending payments: %w", err)
	}
	h.logger.InfoContext(ctx, "stale pending sweep complete", "payments_checked", checked)
	return nil
}

func main() {
	// Initialize structured logger at startup (Cold Start).
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Reconcile Worker Lambda initializing (cold start)")

	ctx := context.Background()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect database", "error", err)
		os.Exit(1)
	}
	registry := db.NewRegistry(pool)

	clients := external.NewClientRegistry(cfg, logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	enqueuer := queue.NewReconcileTrigger(sqsClient, cfg.AWS, logger)

	reconciler := provisioning.NewReconciler(registry, clients.Gateway, enqueuer, logger)

	handler := &Handler{
		reconciler: reconciler,
		logger:     logger,
	}

	logger.Info("Reconcile Worker Lambda initialized",
		"reconcile_queue", cfg.AWS.ReconcileQueueURL,
		"environment", cfg.Environment,
	)

	lambda.Start(handler.Handle)
}
