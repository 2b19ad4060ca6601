package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// logLevel orders severities for filtering.
type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) logLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return levelDebug
	case "WARN", "WARNING":
		return levelWarn
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

// ProductionLogger writes structured log lines to an io.Writer (stdout in
// production), either as JSON (for log aggregation) or as a compact
// logfmt-ish text line (for local development). It implements
// ComponentAwareLogger; WithComponent returns a shallow copy stamped with a
// component field so one base logger can be handed to every package.
type ProductionLogger struct {
	mu        sync.Mutex
	level     logLevel
	format    string // "json" or "text"
	component string
	out       *os.File
}

// NewProductionLogger builds a logger at the given level ("debug", "info",
// "warn", "error") and format ("json" or "text").
func NewProductionLogger(level, format string) *ProductionLogger {
	return &ProductionLogger{
		level:  parseLevel(level),
		format: format,
		out:    os.Stdout,
	}
}

func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:     p.level,
		format:    p.format,
		component: component,
		out:       p.out,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.write(levelInfo, "info", msg, fields)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.write(levelWarn, "warn", msg, fields)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.write(levelError, "error", msg, fields)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.write(levelDebug, "debug", msg, fields)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.write(levelInfo, "info", msg, withTraceFields(ctx, fields))
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.write(levelWarn, "warn", msg, withTraceFields(ctx, fields))
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.write(levelError, "error", msg, withTraceFields(ctx, fields))
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.write(levelDebug, "debug", msg, withTraceFields(ctx, fields))
}

func (p *ProductionLogger) write(level logLevel, levelName, msg string, fields map[string]interface{}) {
	if level < p.level {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format == "json" {
		record := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     levelName,
			"message":   msg,
		}
		if p.component != "" {
			record["component"] = p.component
		}
		for k, v := range fields {
			record[k] = v
		}
		enc := json.NewEncoder(p.out)
		_ = enc.Encode(record)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(levelName), msg)
	if p.component != "" {
		fmt.Fprintf(&b, " component=%s", p.component)
	}
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintln(p.out, b.String())
}

// withTraceFields copies fields and adds trace/span IDs from ctx when
// present, without requiring this package to import the telemetry package
// (which itself may want to log).
func withTraceFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	if ctx == nil {
		return out
	}
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
		out["trace_id"] = traceID
	}
	return out
}

// traceIDKey is the context key the telemetry package stores trace IDs
// under; declared here so the logger can read it without an import cycle.
type traceIDKey struct{}

// WithTraceID returns a context carrying traceID for correlation in logs.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}
