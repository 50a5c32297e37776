package driven

import "time"

// MetricsRecorder defines the driven port for cache observability. It is a
// pure observer: implementations must never influence control flow, and
// recording must not fail visibly.
type MetricsRecorder interface {
	// RecordHit counts a cache hit.
	RecordHit()

	// RecordMiss counts a cache miss.
	RecordMiss()

	// RecordLatency records the duration of a single cache operation.
	RecordLatency(d time.Duration)
}

// NopMetrics is a MetricsRecorder that discards everything. Useful as a
// default when no registry is wired.
type NopMetrics struct{}

func (NopMetrics) RecordHit()                    {}
func (NopMetrics) RecordMiss()                   {}
func (NopMetrics) RecordLatency(_ time.Duration) {}
