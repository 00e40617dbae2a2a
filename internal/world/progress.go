package world

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProgressEvent is emitted on every stage transition and after each tile
type ProgressEvent struct {
	Stage     string
	Total     int
	Processed int
	Success   int
	Failed    int
	Message   string
}

func eventFor(st *Stage, msg string) ProgressEvent {
	return ProgressEvent{
		Stage:     st.Name,
		Total:     st.Total,
		Processed: st.Processed,
		Success:   st.Success,
		Failed:    st.Failed,
		Message:   msg,
	}
}

// ProgressSink receives progress events. Implementations must not block.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

// SinkFunc adapts a function to ProgressSink
type SinkFunc func(ev ProgressEvent)

func (f SinkFunc) Progress(ev ProgressEvent) { f(ev) }

// LogSink logs events at debug level, with tile events at info
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink writing to log
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Progress(ev ProgressEvent) {
	fields := []zap.Field{
		zap.String("stage", ev.Stage),
		zap.Int("total", ev.Total),
		zap.Int("processed", ev.Processed),
		zap.Int("success", ev.Success),
		zap.Int("failed", ev.Failed),
	}
	if ev.Stage == StageTiles {
		s.log.Info(ev.Message, fields...)
		return
	}
	s.log.Debug(ev.Message, fields...)
}

// ProgressTracker estimates throughput and time remaining for a run
type ProgressTracker struct {
	total     int
	startTime time.Time
}

// NewProgressTracker creates a tracker for total units of work
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: total, startTime: time.Now()}
}

// Progress holds current progress information
type Progress struct {
	Current    int
	Total      int
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // units per second
}

// Calculate returns progress metrics given the number of units done
func (p *ProgressTracker) Calculate(current int) Progress {
	return p.calculate(current, time.Since(p.startTime))
}

func (p *ProgressTracker) calculate(current int, elapsed time.Duration) Progress {
	var percentage float64
	var eta time.Duration

	if p.total > 0 && current > 0 {
		percentage = float64(current) / float64(p.total) * 100
		if current < p.total && elapsed > 0 {
			perUnit := elapsed / time.Duration(current)
			eta = perUnit * time.Duration(p.total-current)
		}
	}

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(current) / elapsed.Seconds()
	}

	return Progress{
		Current:    current,
		Total:      p.total,
		Percentage: percentage,
		Elapsed:    elapsed.Round(time.Millisecond),
		ETA:        eta.Round(time.Second),
		Throughput: throughput,
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000_000 {
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	}
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	return fmt.Sprintf("%.1f/s", itemsPerSec)
}
