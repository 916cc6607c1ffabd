package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chartyap-backend/internal/analysis"
	"chartyap-backend/internal/recommendations"
)

const dataBody = `{
  "columns": {"region": {"type": "categorical", "unique_values": 2}, "revenue": {"type": "numeric", "unique_values": 2}},
  "shape": [2, 2],
  "preview": [{"region": "North", "revenue": 120}, {"region": "South", "revenue": 80}],
  "recommendations": [
    {"id": "r1", "title": "Bar Chart: region", "type": "bar",
     "encoding": {"x": {"field": "region"}, "y": {"field": "revenue"}}, "transform": null}
  ]
}`

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", 5*time.Second, 0)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestAnalyzeDataSendsMultipartFile(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze-data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if header.Filename != "sales.csv" || string(content) != "region,revenue\n" {
			t.Errorf("unexpected upload %q %q", header.Filename, content)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(dataBody))
	})

	got, err := c.AnalyzeData(context.Background(), analysis.Upload{FileName: "sales.csv", Content: []byte("region,revenue\n")})
	if err != nil {
		t.Fatalf("analyze data: %v", err)
	}
	if len(got.Result.Recommendations) != 1 || got.Result.Recommendations[0].ID != "r1" {
		t.Fatalf("unexpected recommendations: %+v", got.Result.Recommendations)
	}
	if len(got.Result.PreviewRows) != 2 || got.Result.RowCount != 2 {
		t.Fatalf("unexpected rows: %d/%d", len(got.Result.PreviewRows), got.Result.RowCount)
	}
}

func TestAnalyzeDataErrorBodyWithOK(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Unsupported file format"}`))
	})

	_, err := c.AnalyzeData(context.Background(), analysis.Upload{FileName: "sales.csv"})
	if !errors.Is(err, analysis.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if got := err.Error(); got != "analysis service failure: Unsupported file format" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestAnalyzeDataStatusAndPayloadFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusBadGateway, body: `oops`, want: analysis.ErrUpstream},
		{name: "not json", status: http.StatusOK, body: `<html></html>`, want: analysis.ErrInvalidResponse},
		{name: "missing recommendations", status: http.StatusOK, body: `{"preview": []}`, want: analysis.ErrInvalidResponse},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.AnalyzeData(context.Background(), analysis.Upload{FileName: "sales.csv"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAnalyzeImage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-image" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"filename": "ref.png", "detected_type": " Line ", "message": "Successfully analyzed image. Detected style: line"}`))
	})

	got, err := c.AnalyzeImage(context.Background(), analysis.Upload{FileName: "ref.png", Content: []byte{0x89}})
	if err != nil {
		t.Fatalf("analyze image: %v", err)
	}
	if got.Style != recommendations.DetectedStyle("line") {
		t.Fatalf("style = %q", got.Style)
	}
}

func TestAnalyzeImageMissingStyle(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"filename": "ref.png"}`))
	})
	got, err := c.AnalyzeImage(context.Background(), analysis.Upload{FileName: "ref.png"})
	if err != nil {
		t.Fatalf("analyze image: %v", err)
	}
	if got.Style != "" {
		t.Fatalf("expected empty style, got %q", got.Style)
	}
}

func TestHealth(t *testing.T) {
	healthy := true
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	})
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	healthy = false
	if err := c.Health(context.Background()); !errors.Is(err, analysis.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "  ", "localhost:8000"} {
		if _, err := New(raw, 0, 0); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestAnalyzeDataCarriesStatusCode(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.AnalyzeData(context.Background(), analysis.Upload{FileName: "sales.csv"})

	var statusErr *analysis.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Path != "/analyze-data" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if !statusErr.Temporary() {
		t.Fatalf("503 should be temporary")
	}
}

func TestErrorBodyIsNotStatusError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "unexpected EOF while parsing sheet"}`))
	})
	_, err := c.AnalyzeData(context.Background(), analysis.Upload{FileName: "sales.xlsx"})
	if !errors.Is(err, analysis.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	var statusErr *analysis.StatusError
	if errors.As(err, &statusErr) {
		t.Fatalf("error body must not carry a status: %v", err)
	}
}
