package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
)

// maxInlineAttrs caps how many attributes are printed on one human log line.
const maxInlineAttrs = 6

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes (auto-detected by default)
	UseColors bool
}

// HumanHandler is a slog handler that outputs human-readable log messages.
type HumanHandler struct {
	opts   HumanHandlerOptions
	mu     *sync.Mutex
	writer io.Writer
	attrs  []slog.Attr
	group  string
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		mu:     &sync.Mutex{},
		writer: w,
	}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle outputs a log record in human-readable format:
//
//	15:04:05 ✓ stage completed stage=records record_count=1200 duration=35ms
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(h.prefix(r.Level, r.Message))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, h.formatAttr(a))
		return true
	})
	for _, a := range h.attrs {
		parts = append(parts, h.formatAttr(a))
	}

	if len(parts) > 0 {
		shown := parts
		if len(shown) > maxInlineAttrs {
			shown = shown[:maxInlineAttrs]
		}
		sb.WriteString(" ")
		sb.WriteString(strings.Join(shown, " "))
		if extra := len(parts) - len(shown); extra > 0 {
			fmt.Fprintf(&sb, " (+%d more)", extra)
		}
	}
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup returns a new handler that prefixes attribute keys with name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

// prefix returns the level marker, using ✓ for completion messages.
func (h *HumanHandler) prefix(level slog.Level, message string) string {
	msg := strings.ToLower(message)
	success := strings.Contains(msg, "completed") || strings.Contains(msg, "written")

	var mark, color string
	switch {
	case level >= slog.LevelError:
		mark, color = "✗", colorRed
	case level >= slog.LevelWarn:
		mark, color = "⚠", colorYellow
	case level >= slog.LevelInfo && success:
		mark, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		mark, color = "ℹ", colorCyan
	default:
		mark, color = "·", colorReset
	}

	if h.opts.UseColors {
		return color + mark + colorReset
	}
	return mark
}

// formatAttr formats a single attribute for display.
func (h *HumanHandler) formatAttr(a slog.Attr) string {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return fmt.Sprintf("%s=%s", a.Key, formatDuration(v.Duration()))
	case slog.KindFloat64:
		return fmt.Sprintf("%s=%.2f", a.Key, v.Float64())
	default:
		return fmt.Sprintf("%s=%v", a.Key, v.Any())
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// FormatMetricsHuman formats execution metrics as a one-line summary.
func FormatMetricsHuman(m ExecutionMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kept %d of %d records (%d removed) against %d active identifiers in %s",
		m.RecordsWritten, m.RecordsRead, m.RecordsRemoved(), m.IdentifiersLoaded,
		formatDuration(m.TotalDuration))
	if m.DuplicateKeys > 0 {
		fmt.Fprintf(&sb, ", %d duplicated keys", m.DuplicateKeys)
	}
	return sb.String()
}
