// Package progress defines the events a pipeline run emits and the sinks
// producers report through.
package progress

import (
	"math"
	"sync"
)

// Event is one of DownloadProgress, TranscriptionProgress, Done or Error.
// The set is closed: only this package can add variants.
type Event interface {
	isEvent()
}

// DownloadProgress reports audio acquisition completion in percent.
type DownloadProgress struct {
	Percent int
}

// TranscriptionProgress reports speech-to-text completion in percent.
// Values may be an estimate when the service exposes no progress signal.
type TranscriptionProgress struct {
	Percent int
}

// Done is the successful terminal event.
type Done struct {
	VideoID    string
	Transcript string
	Cached     bool
}

// Error is the failed terminal event. Err keeps the cause for errors.Is/As.
type Error struct {
	Err error
}

func (DownloadProgress) isEvent()      {}
func (TranscriptionProgress) isEvent() {}
func (Done) isEvent()                  {}
func (Error) isEvent()                 {}

// Message is the human readable cause.
func (e Error) Message() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Name is the short tag used on the wire (SSE event names, CLI output).
func Name(ev Event) string {
	switch ev.(type) {
	case DownloadProgress:
		return "download"
	case TranscriptionProgress:
		return "transcribe"
	case Done:
		return "done"
	case Error:
		return "error"
	}
	return "unknown"
}

// Func receives a percentage. Producers may call it with any float value;
// Phase turns the stream into a clean monotonic sequence.
type Func func(percent float64)

// Discard ignores progress.
func Discard(float64) {}

// Phase enforces the per-phase rules: values are clamped to [0,100],
// truncated to whole percents, and only strictly increasing values are
// forwarded. Safe for concurrent reporters.
type Phase struct {
	mu   sync.Mutex
	last int
	emit func(int)
}

// NewPhase forwards accepted values to emit.
func NewPhase(emit func(int)) *Phase {
	return &Phase{last: -1, emit: emit}
}

// Report offers a value; it is dropped unless it exceeds the last one sent.
func (p *Phase) Report(percent float64) {
	v := clamp(percent)
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= p.last {
		return
	}
	p.last = v
	p.emit(v)
}

// Complete sends 100 unless it was already sent.
func (p *Phase) Complete() {
	p.Report(100)
}

// Func adapts the phase to the producer-facing callback type.
func (p *Phase) Func() Func {
	return p.Report
}

func clamp(percent float64) int {
	switch {
	case math.IsNaN(percent), percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return int(percent)
}
