// Package remote implements analysis.Client over the analysis service's
// multipart HTTP API (/analyze-data, /analyze-image, /health).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/recommendations"
	"chartyap-backend/internal/shared/telemetry"
)

const (
	defaultTimeout  = 120 * time.Second
	maxResponseSize = 64 << 20
)

// Client calls the analysis service.
type Client struct {
	baseURL    string
	maxRows    int
	httpClient *http.Client
}

// New constructs a client for baseURL. maxRows caps the rows kept from a data
// analysis; zero keeps all.
func New(baseURL string, timeout time.Duration, maxRows int) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("ANALYSIS_BASE_URL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("ANALYSIS_BASE_URL must be an http(s) URL")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		maxRows:    maxRows,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type errorBody struct {
	Error json.RawMessage `json:"error"`
}

type imageResponse struct {
	FileName     string `json:"filename"`
	DetectedType string `json:"detected_type"`
	Message      string `json:"message"`
}

// AnalyzeData submits a tabular file and decodes the recommendations.
func (c *Client) AnalyzeData(ctx context.Context, upload analysis.Upload) (analysis.DataResult, error) {
	start := time.Now()
	body, err := c.post(ctx, "/analyze-data", upload)
	if err != nil {
		return analysis.DataResult{}, err
	}
	result, rejected, err := recommendations.Decode(body, c.maxRows)
	if err != nil {
		return analysis.DataResult{}, fmt.Errorf("%w: %v", analysis.ErrInvalidResponse, err)
	}
	telemetry.Info("analysis.data_response", map[string]any{
		"file_name":       upload.FileName,
		"recommendations": len(result.Recommendations),
		"rejected":        len(rejected),
		"rows":            len(result.PreviewRows),
		"duration_ms":     time.Since(start).Milliseconds(),
	})
	return analysis.DataResult{Result: result, Rejected: rejected}, nil
}

// AnalyzeImage submits a style image and returns the detected chart family.
func (c *Client) AnalyzeImage(ctx context.Context, upload analysis.Upload) (analysis.ImageResult, error) {
	body, err := c.post(ctx, "/analyze-image", upload)
	if err != nil {
		return analysis.ImageResult{}, err
	}
	var parsed imageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return analysis.ImageResult{}, fmt.Errorf("%w: %v", analysis.ErrInvalidResponse, err)
	}
	return analysis.ImageResult{
		Style:   recommendations.NormalizeStyle(parsed.DetectedType),
		Message: parsed.Message,
	}, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrUpstream, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	if resp.StatusCode != http.StatusOK {
		return &analysis.StatusError{Path: "/health", StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, upload analysis.Upload) ([]byte, error) {
	payload, contentType, err := multipartBody(upload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", analysis.ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", analysis.ErrUpstream, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &analysis.StatusError{Path: path, StatusCode: resp.StatusCode}
	}

	// The service reports handled failures as 200 {"error": "..."}.
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && len(eb.Error) > 0 && string(eb.Error) != "null" {
		return nil, fmt.Errorf("%w: %s", analysis.ErrUpstream, errorText(eb.Error))
	}
	return body, nil
}

func multipartBody(upload analysis.Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", upload.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(upload.Content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func errorText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

var (
	_ analysis.Client        = (*Client)(nil)
	_ analysis.HealthChecker = (*Client)(nil)
)
