package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	PipelineRuns       atomic.Int64
	PipelineFailures   atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	CacheCorrupt       atomic.Int64
	CaptionHits        atomic.Int64
	StrategyAttempts   atomic.Int64
	StrategyFailures   atomic.Int64
	Transcriptions     atomic.Int64
	TranscriptionFails atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
}

var metricKeys = []string{
	"pipeline_runs", "pipeline_failures",
	"cache_hits", "cache_misses", "cache_corrupt",
	"caption_hits",
	"strategy_attempts", "strategy_failures",
	"transcriptions", "transcription_failures",
	"llm_calls", "llm_errors",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"pipeline_runs":          metrics.PipelineRuns.Load(),
		"pipeline_failures":      metrics.PipelineFailures.Load(),
		"cache_hits":             metrics.CacheHits.Load(),
		"cache_misses":           metrics.CacheMisses.Load(),
		"cache_corrupt":          metrics.CacheCorrupt.Load(),
		"caption_hits":           metrics.CaptionHits.Load(),
		"strategy_attempts":      metrics.StrategyAttempts.Load(),
		"strategy_failures":      metrics.StrategyFailures.Load(),
		"transcriptions":         metrics.Transcriptions.Load(),
		"transcription_failures": metrics.TranscriptionFails.Load(),
		"llm_calls":              metrics.LLMCalls.Load(),
		"llm_errors":             metrics.LLMErrors.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrPipelineRuns()       { metrics.PipelineRuns.Add(1) }
func IncrPipelineFailures()   { metrics.PipelineFailures.Add(1) }
func IncrCacheHits()          { metrics.CacheHits.Add(1) }
func IncrCacheMisses()        { metrics.CacheMisses.Add(1) }
func IncrCacheCorrupt()       { metrics.CacheCorrupt.Add(1) }
func IncrCaptionHits()        { metrics.CaptionHits.Add(1) }
func IncrStrategyAttempts()   { metrics.StrategyAttempts.Add(1) }
func IncrStrategyFailures()   { metrics.StrategyFailures.Add(1) }
func IncrTranscriptions()     { metrics.Transcriptions.Add(1) }
func IncrTranscriptionFails() { metrics.TranscriptionFails.Add(1) }
func IncrLLMCalls()           { metrics.LLMCalls.Add(1) }
func IncrLLMErrors()          { metrics.LLMErrors.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
