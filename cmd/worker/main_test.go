package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"chartyap-backend/internal/events"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeHandler struct {
	err  error
	seen []string
}

func (f *fakeHandler) Handle(ctx context.Context, evt events.RunFinished) (events.Outcome, error) {
	f.seen = append(f.seen, evt.RunID)
	return events.OutcomeFinished, f.err
}

func eventMessage(t *testing.T, id, receipt string) sqstypes.Message {
	t.Helper()
	body, err := events.Encode(events.RunFinished{
		RunID:      "run-" + id,
		SessionID:  "sess-1",
		Status:     "populated",
		FinishedAt: "2026-05-01T09:30:00Z",
		Version:    events.Version,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	handler := &fakeHandler{}

	handleMessage(context.Background(), client, "queue", handler, eventMessage(t, "m1", "r1"))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(handler.seen) != 1 || handler.seen[0] != "run-m1" {
		t.Fatalf("expected handler to see run-m1, got %v", handler.seen)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	handler := &fakeHandler{err: errors.New("boom")}

	handleMessage(context.Background(), client, "queue", handler, eventMessage(t, "m2", "r2"))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	handler := &fakeHandler{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), client, "queue", handler, msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(handler.seen) != 0 {
		t.Fatalf("handler must not run for undecodable events")
	}
}

func TestWorkerDeletesUnknownVersion(t *testing.T) {
	client := &fakeSQS{}
	handler := &fakeHandler{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String(`{"runId":"run-4","version":99}`),
	}

	handleMessage(context.Background(), client, "queue", handler, msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
