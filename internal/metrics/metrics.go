// ABOUTME: Prometheus metrics for sinks and the source coordinator
// ABOUTME: Package-level collectors registered with the default registry
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LateChunks counts Data chunks that arrived after their presentation time.
	LateChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_sink_late_chunks_total",
		Help: "Chunks dropped on arrival because their timestamp had already passed",
	}, []string{"sink"})

	// Discards counts chunks dropped because the buffer was full.
	Discards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_sink_discarded_chunks_total",
		Help: "Chunks discarded because the buffer would exceed its capacity",
	}, []string{"sink", "stage"})

	// StaleDrops counts chunks dropped by the scheduler during underrun recovery.
	StaleDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_sink_stale_chunks_total",
		Help: "Buffered chunks dropped because they became outdated during recovery",
	}, []string{"sink"})

	Underruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_sink_underruns_total",
		Help: "Buffer underruns detected by the output scheduler",
	}, []string{"sink"})

	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_sink_bytes_written_total",
		Help: "PCM bytes written to the audio device",
	}, []string{"sink"})

	FifoSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_sink_fifo_position_signals_total",
		Help: "FifoPositionChanged notifications emitted",
	}, []string{"sink"})

	// PlayState reports the current play state as a number (0 idle, 1 playing, 2 paused).
	PlayState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resonate_sink_play_state",
		Help: "Current play state of the sink",
	}, []string{"sink"})

	// FifoPosition tracks the combined buffer occupancy in bytes.
	FifoPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resonate_sink_fifo_position_bytes",
		Help: "Combined buffer occupancy",
	}, []string{"sink"})

	BytesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_source_bytes_emitted_total",
		Help: "Source bytes encoded and sent per sink",
	}, []string{"sink"})

	OutdatedSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resonate_source_outdated_chunks_total",
		Help: "Source chunks skipped because their timestamp had passed before sending",
	}, []string{"sink"})

	SinksOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resonate_source_sinks_open",
		Help: "Number of sinks currently opened by the source",
	})
)

// Forget removes the per-sink series once a sink is gone
func Forget(sink string) {
	for _, vec := range []*prometheus.CounterVec{LateChunks, StaleDrops, Underruns, BytesWritten, FifoSignals, BytesEmitted, OutdatedSkipped} {
		vec.DeleteLabelValues(sink)
	}
	Discards.DeletePartialMatch(prometheus.Labels{"sink": sink})
	PlayState.DeleteLabelValues(sink)
	FifoPosition.DeleteLabelValues(sink)
}
