package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"log"
	"sync"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"chartyap-backend/internal/events"
	"chartyap-backend/internal/runs"
	"chartyap-backend/internal/shared/config"
	"chartyap-backend/internal/shared/metrics"
	"chartyap-backend/internal/shared/storage/db"
	"chartyap-backend/internal/shared/telemetry"
)

type eventHandler interface {
	Handle(ctx context.Context, evt events.RunFinished) (events.Outcome, error)
}

var (
	initOnce   sync.Once
	initErr    error
	reconciler eventHandler
)

func initApp() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	if cfg.DatabaseURL == "" {
		initErr = errors.New("DATABASE_URL is required")
		return
	}
	sqlDB, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		initErr = err
		return
	}
	reconciler = events.Reconciler{Runs: &runs.PGRepo{DB: sqlDB}}
}

func handler(ctx context.Context, event lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]lambdaevents.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return lambdaevents.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return process(ctx, reconciler, event), nil
}

// process reconciles every record. Undecodable records are dropped; records
// whose reconciliation fails are reported back for redelivery.
func process(ctx context.Context, h eventHandler, event lambdaevents.SQSEvent) lambdaevents.SQSEventResponse {
	failures := make([]lambdaevents.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncEventsReceived()
		evt, err := events.Decode([]byte(record.Body))
		if err != nil {
			telemetry.Error("worker.event.decode_failed", map[string]any{
				"sqs_message_id": record.MessageId,
				"error":          err.Error(),
			})
			metrics.IncEventsDropped()
			continue
		}
		outcome, err := h.Handle(ctx, evt)
		if err != nil {
			telemetry.Error("worker.event.failed", map[string]any{
				"sqs_message_id": record.MessageId,
				"run_id":         evt.RunID,
				"error":          err.Error(),
			})
			metrics.IncEventsFailed()
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		telemetry.Info("worker.event.reconciled", map[string]any{
			"sqs_message_id": record.MessageId,
			"run_id":         evt.RunID,
			"outcome":        string(outcome),
		})
		metrics.IncEventsReconciled()
	}
	return lambdaevents.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
