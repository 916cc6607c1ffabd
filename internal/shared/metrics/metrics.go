package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	generateStartedTotal         atomic.Uint64
	generatePopulatedTotal       atomic.Uint64
	generateFailedTotal          atomic.Uint64
	imageAnalysisFailedTotal     atomic.Uint64
	recommendationsRejectedTotal atomic.Uint64
	cardRenderFailedTotal        atomic.Uint64
	eventsReceivedTotal          atomic.Uint64
	eventsReconciledTotal        atomic.Uint64
	eventsFailedTotal            atomic.Uint64
	eventsDroppedTotal           atomic.Uint64

	generateDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncGenerateStarted counts runs that entered Running.
func IncGenerateStarted() {
	generateStartedTotal.Add(1)
}

// IncGeneratePopulated counts runs that reached Populated.
func IncGeneratePopulated() {
	generatePopulatedTotal.Add(1)
}

// IncGenerateFailed counts runs whose data analysis failed.
func IncGenerateFailed() {
	generateFailedTotal.Add(1)
}

// IncImageAnalysisFailed counts style detections that failed without failing the run.
func IncImageAnalysisFailed() {
	imageAnalysisFailedTotal.Add(1)
}

// AddRecommendationsRejected counts recommendations dropped during validation.
func AddRecommendationsRejected(n int) {
	if n <= 0 {
		return
	}
	recommendationsRejectedTotal.Add(uint64(n))
}

// IncCardRenderFailed counts cards whose rendering failed.
func IncCardRenderFailed() {
	cardRenderFailedTotal.Add(1)
}

// IncEventsReceived counts run events pulled from the queue.
func IncEventsReceived() {
	eventsReceivedTotal.Add(1)
}

// IncEventsReconciled counts run events applied to the ledger and acknowledged.
func IncEventsReconciled() {
	eventsReconciledTotal.Add(1)
}

// IncEventsFailed counts run events left on the queue for redelivery.
func IncEventsFailed() {
	eventsFailedTotal.Add(1)
}

// IncEventsDropped counts undecodable run events deleted without processing.
func IncEventsDropped() {
	eventsDroppedTotal.Add(1)
}

// ObserveGenerateDurationMs records a run duration in milliseconds.
func ObserveGenerateDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	generateDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "generate_started_total", "Total generation runs started", generateStartedTotal.Load())
	writeCounter(&buf, "generate_populated_total", "Total generation runs that populated the gallery", generatePopulatedTotal.Load())
	writeCounter(&buf, "generate_failed_total", "Total generation runs whose data analysis failed", generateFailedTotal.Load())
	writeCounter(&buf, "image_analysis_failed_total", "Total style image analyses that failed", imageAnalysisFailedTotal.Load())
	writeCounter(&buf, "recommendations_rejected_total", "Total recommendations rejected during validation", recommendationsRejectedTotal.Load())
	writeCounter(&buf, "card_render_failed_total", "Total gallery cards that failed to render", cardRenderFailedTotal.Load())
	writeCounter(&buf, "run_events_received_total", "Total run events received by the worker", eventsReceivedTotal.Load())
	writeCounter(&buf, "run_events_reconciled_total", "Total run events applied to the run ledger", eventsReconciledTotal.Load())
	writeCounter(&buf, "run_events_failed_total", "Total run events that failed and await redelivery", eventsFailedTotal.Load())
	writeCounter(&buf, "run_events_dropped_total", "Total undecodable run events deleted", eventsDroppedTotal.Load())
	writeHistogram(&buf, "generate_duration_ms", "Generation run duration in milliseconds", generateDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

// Bucket counts are stored per-bucket and accumulated here.
func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the elapsed time since start in milliseconds.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
