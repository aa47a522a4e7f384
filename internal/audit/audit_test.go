package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"libradesk/internal/audit"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/membership"
	"libradesk/internal/store"
)

type staticSource store.Snapshot

func (s staticSource) Snapshot() store.Snapshot { return store.Snapshot(s) }

func issued(id, book, member string) circulation.Loan {
	return circulation.Loan{ID: id, BookID: book, MemberID: member, IssueDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Status: circulation.StatusBorrowed}
}

func consistent() store.Snapshot {
	return store.Snapshot{
		Version: 3,
		Books: map[string]catalog.Book{
			"b1": {ID: "b1", Title: "Dune", Author: "Frank Herbert", Quantity: 2, Available: 1},
		},
		Members: map[string]membership.Member{
			"m1": {ID: "m1", Name: "Ada", Active: true},
			"m2": {ID: "m2", Name: "Grace", Active: false},
		},
		Loans: map[string]circulation.Loan{
			"l1": issued("l1", "b1", "m1"),
		},
	}
}

func TestAudit_Consistent(t *testing.T) {
	a := audit.NewAuditor(staticSource(consistent()))
	assert.Nil(t, a.Last())

	report := a.Audit(context.Background())

	assert.True(t, report.Healthy())
	assert.Equal(t, uint64(3), report.Version)
	assert.Len(t, report.Observations, len(audit.DefaultChecks()))
	assert.Same(t, report, a.Last())
}

func TestAudit_Violations(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*store.Snapshot)
		check    string
		subjects []string
	}{
		{
			name:     "available above quantity",
			mutate:   func(s *store.Snapshot) { s.Books["b1"] = catalog.Book{ID: "b1", Quantity: 2, Available: 3} },
			check:    "books_out_of_bounds",
			subjects: []string{"b1"},
		},
		{
			name: "more loans than copies",
			mutate: func(s *store.Snapshot) {
				s.Loans["l2"] = issued("l2", "b1", "m1")
				s.Loans["l3"] = issued("l3", "b1", "m1")
			},
			check:    "oversubscribed_books",
			subjects: []string{"b1"},
		},
		{
			name:     "decrement without loan",
			mutate:   func(s *store.Snapshot) { s.Books["b1"] = catalog.Book{ID: "b1", Quantity: 2, Available: 0} },
			check:    "availability_drift",
			subjects: []string{"b1"},
		},
		{
			name:     "inactive member holding a book",
			mutate:   func(s *store.Snapshot) { s.Members["m1"] = membership.Member{ID: "m1", Name: "Ada"} },
			check:    "inactive_members_with_loans",
			subjects: []string{"m1"},
		},
		{
			name:     "loan for unknown member",
			mutate:   func(s *store.Snapshot) { delete(s.Members, "m1") },
			check:    "orphaned_loans",
			subjects: []string{"l1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := consistent()
			tt.mutate(&snap)

			report := audit.NewAuditor(staticSource(snap)).Audit(context.Background())

			require.False(t, report.Healthy())
			var found *audit.Violation
			for i := range report.Violations {
				if report.Violations[i].Check == tt.check {
					found = &report.Violations[i]
				}
			}
			require.NotNil(t, found, "violations: %+v", report.Violations)
			assert.Equal(t, tt.subjects, found.Subjects)
			assert.Zero(t, found.Expected)
		})
	}
}

// brokenMeter refuses to create counters.
type brokenMeter struct {
	noop.Meter
}

func (brokenMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errors.New("exporter misconfigured")
}

func TestAudit_MeterFailureFallsBackToNoop(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	snap := consistent()
	snap.Books["b1"] = catalog.Book{ID: "b1", Quantity: 2, Available: 3}
	a := audit.NewAuditor(staticSource(snap), audit.WithLogger(logger), audit.WithMeter(brokenMeter{}))

	report := a.Audit(context.Background())

	assert.False(t, report.Healthy())
	assert.Contains(t, logs.String(), "audit metrics disabled")
	assert.Contains(t, logs.String(), "exporter misconfigured")
}

func TestAudit_CustomCheck(t *testing.T) {
	a := audit.NewAuditor(staticSource(consistent()))
	a.Register(audit.Check{
		Name:      "at_least_two_members",
		Measure:   func(s store.Snapshot) (float64, []string) { return float64(len(s.Members)), nil },
		Threshold: audit.Threshold{Operator: ">=", Value: 3},
	})

	report := a.Audit(context.Background())

	require.Len(t, report.Violations, 1)
	assert.Equal(t, 2.0, report.Violations[0].Actual)
	assert.Len(t, a.Checks(), len(audit.DefaultChecks())+1)
}

func TestAudit_UnknownOperatorFails(t *testing.T) {
	a := audit.NewAuditor(staticSource(consistent()))
	a.Register(audit.Check{
		Name:      "bogus",
		Measure:   func(store.Snapshot) (float64, []string) { return 0, nil },
		Threshold: audit.Threshold{Operator: "!=", Value: 1},
	})

	assert.False(t, a.Audit(context.Background()).Healthy())
}

func TestAudit_RunStopsWithContext(t *testing.T) {
	a := audit.NewAuditor(staticSource(consistent()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return a.Last() != nil }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReport_Print(t *testing.T) {
	snap := consistent()
	delete(snap.Books, "b1")
	report := audit.NewAuditor(staticSource(snap)).Audit(context.Background())

	var buf bytes.Buffer
	report.Print(&buf)

	assert.Contains(t, buf.String(), "1 violations at version 3")
	assert.Contains(t, buf.String(), "orphaned_loans: expected 0, got 1 [l1]")
}
