package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) next() error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedClient) AnalyzeData(ctx context.Context, upload Upload) (DataResult, error) {
	if err := s.next(); err != nil {
		return DataResult{}, err
	}
	return DataResult{}, nil
}

func (s *scriptedClient) AnalyzeImage(ctx context.Context, upload Upload) (ImageResult, error) {
	if err := s.next(); err != nil {
		return ImageResult{}, err
	}
	return ImageResult{Style: "line"}, nil
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "5xx", err: &StatusError{Path: "/analyze-data", StatusCode: http.StatusBadGateway}, want: true},
		{name: "429", err: &StatusError{Path: "/analyze-data", StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "4xx", err: &StatusError{Path: "/analyze-data", StatusCode: http.StatusBadRequest}, want: false},
		{name: "wrapped 5xx", err: fmt.Errorf("analyze: %w", &StatusError{Path: "/analyze-image", StatusCode: 503}), want: true},
		{name: "refused", err: fmt.Errorf("%w: /analyze-data: %w", ErrUpstream, &url.Error{Op: "Post", URL: "http://localhost:8000/analyze-data", Err: syscall.ECONNREFUSED}), want: true},
		{name: "reset while reading", err: fmt.Errorf("%w: read /analyze-data: %w", ErrUpstream, syscall.ECONNRESET), want: true},
		{name: "truncated body", err: fmt.Errorf("%w: read /analyze-data: %w", ErrUpstream, io.ErrUnexpectedEOF), want: true},
		{name: "invalid response", err: fmt.Errorf("%w: unexpected EOF", ErrInvalidResponse), want: false},
		{name: "service error body", err: fmt.Errorf("%w: Unsupported file format", ErrUpstream), want: false},
		{name: "error body mentioning eof", err: fmt.Errorf("%w: unexpected EOF in column 3", ErrUpstream), want: false},
		{name: "error body mentioning status", err: fmt.Errorf("%w: upstream http status 503 from sheet parser", ErrUpstream), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	base := &scriptedClient{errs: []error{fmt.Errorf("%w: read: %w", ErrUpstream, syscall.ECONNRESET)}}
	c := retryingClient{base: base, retries: 2, baseDelay: time.Millisecond}

	got, err := c.AnalyzeImage(context.Background(), Upload{FileName: "ref.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Style != "line" {
		t.Fatalf("style = %q", got.Style)
	}
	if base.calls != 2 {
		t.Fatalf("calls = %d, want 2", base.calls)
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	transient := &StatusError{Path: "/analyze-data", StatusCode: http.StatusServiceUnavailable}
	base := &scriptedClient{errs: []error{transient, transient, transient, transient}}
	c := retryingClient{base: base, retries: 2, baseDelay: time.Millisecond}

	_, err := c.AnalyzeData(context.Background(), Upload{FileName: "sales.csv"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
}

func TestRetrySkipsPermanentFailure(t *testing.T) {
	base := &scriptedClient{errs: []error{fmt.Errorf("%w: bad body", ErrInvalidResponse)}}
	c := retryingClient{base: base, retries: 3, baseDelay: time.Millisecond}

	if _, err := c.AnalyzeData(context.Background(), Upload{}); err == nil {
		t.Fatalf("expected error")
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d, want 1", base.calls)
	}
}

func TestWithRetryZeroReturnsBase(t *testing.T) {
	base := &scriptedClient{}
	if got := WithRetry(base, 0); got != Client(base) {
		t.Fatalf("expected base client back")
	}
}

func TestStatusErrorMatchesUpstream(t *testing.T) {
	err := error(&StatusError{Path: "/analyze-data", StatusCode: 502})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream")
	}
	if got, want := err.Error(), "analysis service failure: /analyze-data http status 502"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
