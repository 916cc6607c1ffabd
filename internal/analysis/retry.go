package analysis

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"

	"chartyap-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingClient struct {
	base      Client
	retries   int
	baseDelay time.Duration
}

// WithRetry wraps base so transient failures are retried up to retries times
// with doubling backoff. retries <= 0 returns base unchanged.
func WithRetry(base Client, retries int) Client {
	if base == nil || retries <= 0 {
		return base
	}
	return retryingClient{base: base, retries: retries, baseDelay: retryBaseDelay}
}

func (r retryingClient) AnalyzeData(ctx context.Context, upload Upload) (DataResult, error) {
	var out DataResult
	err := r.do(ctx, "data", upload.FileName, func() error {
		var err error
		out, err = r.base.AnalyzeData(ctx, upload)
		return err
	})
	return out, err
}

func (r retryingClient) AnalyzeImage(ctx context.Context, upload Upload) (ImageResult, error) {
	var out ImageResult
	err := r.do(ctx, "image", upload.FileName, func() error {
		var err error
		out, err = r.base.AnalyzeImage(ctx, upload)
		return err
	})
	return out, err
}

// Health forwards to the wrapped client when it supports probing.
func (r retryingClient) Health(ctx context.Context) error {
	if hc, ok := r.base.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

func (r retryingClient) do(ctx context.Context, kind, fileName string, call func() error) error {
	delay := r.baseDelay
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil || attempt >= r.retries || !shouldRetry(err) {
			return err
		}
		telemetry.Warn("analysis.retry", map[string]any{
			"kind":      kind,
			"file_name": fileName,
			"attempt":   attempt + 1,
			"error":     err,
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
}

// shouldRetry classifies by error type only. Messages carried in the
// service's error bodies never make a failure transient.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// A transport failure on the way to the service: dial, write or read.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}
