// Package metrics records every resolution attempt into process-wide rolling
// counters for health reporting. Recording is append-heavy and must never
// fail the caller; summaries are read-mostly.
package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome classifies a single resolution attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFailure  Outcome = "failure"
	OutcomeFallback Outcome = "fallback"
)

// Sample is one resolution attempt's measurements.
type Sample struct {
	Timestamp       time.Time
	Outcome         Outcome
	LatencyMs       float64
	Confidence      float64
	CompletenessPct float64
}

// hourBucket accumulates request/failure counts for one wall-clock hour.
type hourBucket struct {
	hourUnix int64 // hours since epoch this bucket currently represents
	requests int64
	failures int64
}

// Recorder aggregates samples into rolling counters plus a fixed 24-slot
// hourly ring. Counter updates are atomic; the ring is guarded by a short
// critical section and summaries copy it out before computing.
type Recorder struct {
	total    int64
	success  int64
	partial  int64
	failure  int64
	fallback int64

	latencySum      uint64 // math.Float64bits, CAS-added
	confidenceSum   uint64
	completenessSum uint64

	ringMu sync.Mutex
	ring   [24]hourBucket

	now func() time.Time // test seam
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// atomicAddFloat64 performs an atomic add on a uint64 that stores a float64
// using CAS.
func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newVal := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newVal)) {
			return
		}
	}
}

// Record folds one sample into the aggregates. It never returns an error and
// never panics on odd input; a recording problem must not fail a resolution.
func (r *Recorder) Record(s Sample) {
	atomic.AddInt64(&r.total, 1)
	switch s.Outcome {
	case OutcomePartial:
		atomic.AddInt64(&r.partial, 1)
	case OutcomeFailure:
		atomic.AddInt64(&r.failure, 1)
	case OutcomeFallback:
		atomic.AddInt64(&r.fallback, 1)
	default:
		atomic.AddInt64(&r.success, 1)
	}
	atomicAddFloat64(&r.latencySum, s.LatencyMs)
	atomicAddFloat64(&r.confidenceSum, s.Confidence)
	atomicAddFloat64(&r.completenessSum, s.CompletenessPct)

	ts := s.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	hour := ts.Unix() / 3600
	idx := hour % 24

	r.ringMu.Lock()
	b := &r.ring[idx]
	if b.hourUnix != hour {
		// Slot belongs to an hour at least a day old; recycle it.
		b.hourUnix = hour
		b.requests = 0
		b.failures = 0
	}
	b.requests++
	if s.Outcome == OutcomeFailure {
		b.failures++
	}
	r.ringMu.Unlock()
}

// HourCount is one hour's request volume within the trailing window.
type HourCount struct {
	Hour     time.Time `json:"hour"`
	Requests int64     `json:"requests"`
	Failures int64     `json:"failures"`
}

// WindowSummary describes the trailing 24-hour window.
type WindowSummary struct {
	RequestsPerHour    []HourCount `json:"requests_per_hour"`
	PeakHour           *time.Time  `json:"peak_hour,omitempty"`
	ErrorSpikeDetected bool        `json:"error_spike_detected"`
}

// Summary is the aggregate health view of the resolution engine.
type Summary struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessCount       int64         `json:"success_count"`
	PartialCount       int64         `json:"partial_count"`
	FailureCount       int64         `json:"failure_count"`
	FallbackUsedCount  int64         `json:"fallback_used_count"`
	SuccessRatePct     float64       `json:"success_rate_pct"`
	AvgLatencyMs       float64       `json:"avg_latency_ms"`
	AvgConfidence      float64       `json:"avg_confidence"`
	AvgCompletenessPct float64       `json:"avg_field_completeness_pct"`
	Last24h            WindowSummary `json:"last_24h"`
}

// Summarize computes the current aggregate view. The ring is copied out under
// the lock and summarized outside it.
func (r *Recorder) Summarize() Summary {
	total := atomic.LoadInt64(&r.total)
	failure := atomic.LoadInt64(&r.failure)

	s := Summary{
		TotalRequests:     total,
		SuccessCount:      atomic.LoadInt64(&r.success),
		PartialCount:      atomic.LoadInt64(&r.partial),
		FailureCount:      failure,
		FallbackUsedCount: atomic.LoadInt64(&r.fallback),
	}
	if total > 0 {
		s.SuccessRatePct = float64(total-failure) / float64(total) * 100
		s.AvgLatencyMs = math.Float64frombits(atomic.LoadUint64(&r.latencySum)) / float64(total)
		s.AvgConfidence = math.Float64frombits(atomic.LoadUint64(&r.confidenceSum)) / float64(total)
		s.AvgCompletenessPct = math.Float64frombits(atomic.LoadUint64(&r.completenessSum)) / float64(total)
	}

	r.ringMu.Lock()
	ring := r.ring
	r.ringMu.Unlock()

	nowHour := r.now().Unix() / 3600
	for i := range ring {
		b := ring[i]
		if b.hourUnix == 0 || nowHour-b.hourUnix >= 24 {
			continue
		}
		s.Last24h.RequestsPerHour = append(s.Last24h.RequestsPerHour, HourCount{
			Hour:     time.Unix(b.hourUnix*3600, 0).UTC(),
			Requests: b.requests,
			Failures: b.failures,
		})
		if b.hourUnix == nowHour && b.requests > 0 {
			failureRate := float64(b.failures) / float64(b.requests)
			s.Last24h.ErrorSpikeDetected = failureRate > 0.20
		}
	}
	sort.Slice(s.Last24h.RequestsPerHour, func(i, j int) bool {
		return s.Last24h.RequestsPerHour[i].Hour.Before(s.Last24h.RequestsPerHour[j].Hour)
	})
	peak := -1
	for i, hc := range s.Last24h.RequestsPerHour {
		if peak < 0 || hc.Requests > s.Last24h.RequestsPerHour[peak].Requests {
			peak = i
		}
	}
	if peak >= 0 {
		h := s.Last24h.RequestsPerHour[peak].Hour
		s.Last24h.PeakHour = &h
	}
	return s
}

// Reset clears all aggregates. Operator-triggered only.
func (r *Recorder) Reset() {
	atomic.StoreInt64(&r.total, 0)
	atomic.StoreInt64(&r.success, 0)
	atomic.StoreInt64(&r.partial, 0)
	atomic.StoreInt64(&r.failure, 0)
	atomic.StoreInt64(&r.fallback, 0)
	atomic.StoreUint64(&r.latencySum, 0)
	atomic.StoreUint64(&r.confidenceSum, 0)
	atomic.StoreUint64(&r.completenessSum, 0)

	r.ringMu.Lock()
	r.ring = [24]hourBucket{}
	r.ringMu.Unlock()
}
