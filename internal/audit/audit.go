// internal/audit/audit.go

// Package audit runs steady-state consistency checks over the domain store.
// The loan manager accepts races between concurrent issues; the auditor is
// where their effects become visible.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/store"
)

// Source provides the snapshots to audit. *store.Store implements it.
type Source interface {
	Snapshot() store.Snapshot
}

// Check defines a measurable property of a snapshot and the threshold it must meet.
type Check struct {
	Name        string
	Description string
	// Measure returns the value and the ids of the records responsible for it.
	Measure   func(store.Snapshot) (float64, []string)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Violation is a check that did not meet its threshold.
type Violation struct {
	Check     string    `json:"check"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Subjects  []string  `json:"subjects,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report captures one audit run.
type Report struct {
	Version      uint64             `json:"version"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
	Observations map[string]float64 `json:"observations"`
	Violations   []Violation        `json:"violations"`
}

// Healthy reports whether every check met its threshold.
func (r *Report) Healthy() bool {
	return len(r.Violations) == 0
}

// Auditor evaluates registered checks against store snapshots.
type Auditor struct {
	source     Source
	tracer     trace.Tracer
	logger     *slog.Logger
	meter      metric.Meter
	violations metric.Int64Counter

	mu     sync.Mutex
	checks []Check
	last   *Report
}

type Option func(*Auditor)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

func WithMeter(m metric.Meter) Option {
	return func(a *Auditor) {
		a.meter = m
	}
}

// NewAuditor creates an auditor with the default checks registered.
func NewAuditor(source Source, opts ...Option) *Auditor {
	a := &Auditor{
		source: source,
		tracer: otel.Tracer("libradesk/audit"),
		logger: slog.Default(),
		meter:  otel.Meter("libradesk/audit"),
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.violations, err = a.meter.Int64Counter("libradesk.audit.violations",
		metric.WithDescription("Consistency check violations")); err != nil {
		a.logger.Warn("audit metrics disabled", "error", err)
		a.violations, _ = noop.NewMeterProvider().Meter("libradesk/audit").Int64Counter("libradesk.audit.violations")
	}
	for _, c := range DefaultChecks() {
		a.Register(c)
	}
	return a
}

// Register adds a check.
func (a *Auditor) Register(c Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, c)
}

// Checks returns the registered checks.
func (a *Auditor) Checks() []Check {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Check(nil), a.checks...)
}

// Last returns the most recent report, or nil before the first run.
func (a *Auditor) Last() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Audit evaluates every check against the current snapshot.
func (a *Auditor) Audit(ctx context.Context) *Report {
	ctx, span := a.tracer.Start(ctx, "audit.run")
	defer span.End()

	snap := a.source.Snapshot()
	report := &Report{
		Version:      snap.Version,
		StartTime:    time.Now(),
		Observations: make(map[string]float64),
	}

	for _, c := range a.Checks() {
		value, subjects := c.Measure(snap)
		report.Observations[c.Name] = value

		if !evaluateThreshold(value, c.Threshold) {
			sort.Strings(subjects)
			report.Violations = append(report.Violations, Violation{
				Check:     c.Name,
				Expected:  c.Threshold.Value,
				Actual:    value,
				Subjects:  subjects,
				Timestamp: time.Now(),
			})
			a.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("check", c.Name)))
		}
	}
	report.EndTime = time.Now()

	span.SetAttributes(
		attribute.Int64("store.version", int64(snap.Version)),
		attribute.Int("violations", len(report.Violations)),
	)

	a.mu.Lock()
	a.last = report
	a.mu.Unlock()
	return report
}

// Run audits every interval until ctx is done, logging each violation.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := a.Audit(ctx)
			for _, v := range report.Violations {
				a.logger.Warn("consistency check failed",
					"check", v.Check,
					"expected", v.Expected,
					"actual", v.Actual,
					"subjects", v.Subjects,
					"store_version", report.Version,
				)
			}
		}
	}
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

// Print writes a human-readable summary of r.
func (r *Report) Print(w io.Writer) {
	if r.Healthy() {
		fmt.Fprintf(w, "consistent at version %d\n", r.Version)
	} else {
		fmt.Fprintf(w, "%d violations at version %d\n", len(r.Violations), r.Version)
	}

	names := make([]string, 0, len(r.Observations))
	for name := range r.Observations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-28s %g\n", name, r.Observations[name])
	}

	for _, v := range r.Violations {
		fmt.Fprintf(w, "  - %s: expected %g, got %g %v\n", v.Check, v.Expected, v.Actual, v.Subjects)
	}
	fmt.Fprintf(w, "took %s\n", r.EndTime.Sub(r.StartTime))
}
