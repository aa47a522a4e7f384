// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/backend"
	"libradesk/internal/catalog"
	"libradesk/internal/errs"
)

// service implements the Service interface.
type service struct {
	backend backend.Backend
	policy  Policy
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter

	issued        metric.Int64Counter
	returned      metric.Int64Counter
	compensations metric.Int64Counter
	fees          metric.Float64Counter
}

type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for issue and return timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func WithPolicy(p Policy) Option {
	return func(s *service) {
		s.policy = p
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *service) {
		s.meter = m
	}
}

// NewService creates a new loan manager.
func NewService(b backend.Backend, opts ...Option) Service {
	s := &service{
		backend: b,
		policy:  DefaultPolicy(),
		now:     time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer("libradesk/circulation"),
		meter:   otel.Meter("libradesk/circulation"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.instrument(); err != nil {
		s.logger.Warn("loan metrics disabled", "error", err)
		s.meter = noop.NewMeterProvider().Meter("libradesk/circulation")
		_ = s.instrument()
	}
	return s
}

// IssueLoan lends one copy of a book to a member.
//
// The availability decrement and the loan record are two separate writes. If
// the loan cannot be written the decrement is reverted, best effort; a failed
// revert is logged and the book stays one copy short. Two concurrent issues of
// the last copy can both pass the availability check.
func (s *service) IssueLoan(ctx context.Context, bookID, memberID string) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue_loan",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.String("member.id", memberID),
		),
	)
	defer span.End()

	bookID = strings.TrimSpace(bookID)
	memberID = strings.TrimSpace(memberID)
	if bookID == "" || memberID == "" {
		return nil, errs.Validation("please select a book and a member")
	}

	// Step 1: Check availability
	rec, err := s.backend.Read(ctx, backend.Books, bookID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, errs.Unavailable("book is not available")
	}
	if err != nil {
		return nil, s.fail(span, "error issuing book", err)
	}
	book, err := catalog.BookFromRecord(bookID, rec)
	if err != nil {
		return nil, s.fail(span, "error issuing book", err)
	}
	if book.Available <= 0 {
		return nil, errs.Unavailable("book is not available")
	}

	// Step 2: Decrement availability
	if err := s.backend.Update(ctx, backend.Books, bookID, backend.Record{"available": book.Available - 1}); err != nil {
		return nil, s.fail(span, "error issuing book", err)
	}

	// compensation overwrites availability with the absolute value read above,
	// not a relative +1, so a change another client made in between is lost.
	compensation := func() {
		s.logger.Warn("compensating failed issue: restoring availability", "book_id", bookID, "available", book.Available)
		s.compensations.Add(ctx, 1)
		// The caller's context may already be done; the revert still has to go out.
		if err := s.backend.Update(context.WithoutCancel(ctx), backend.Books, bookID, backend.Record{"available": book.Available}); err != nil {
			span.AddEvent("compensation failed")
			s.logger.Error("failed to compensate book availability", "book_id", bookID, "error", err)
		}
	}

	// Step 3: Create the loan record
	loan := &Loan{
		BookID:    bookID,
		MemberID:  memberID,
		IssueDate: s.now().UTC(),
		Status:    StatusBorrowed,
	}
	id, err := s.backend.Create(ctx, backend.Loans, loan.Record())
	if err != nil {
		compensation()
		return nil, s.fail(span, "error issuing book", err)
	}
	loan.ID = id

	span.SetAttributes(attribute.String("loan.id", id))
	s.issued.Add(ctx, 1)
	s.logger.Info("loan issued", "loan_id", id, "book_id", bookID, "member_id", memberID)
	return loan, nil
}

// ReturnLoan closes a borrowed loan, puts the copy back on the shelf and
// computes the late fee. The loan is closed before the copy is restored; a
// book that no longer exists is skipped.
func (s *service) ReturnLoan(ctx context.Context, loanID string) (*Return, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_loan",
		trace.WithAttributes(attribute.String("loan.id", loanID)),
	)
	defer span.End()

	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, errs.Validation("please select a loan to return")
	}

	// Step 1: Load the loan
	rec, err := s.backend.Read(ctx, backend.Loans, loanID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, errs.NotFound("loan %s not found", loanID)
	}
	if err != nil {
		return nil, s.fail(span, "error returning book", err)
	}
	loan, err := LoanFromRecord(loanID, rec)
	if err != nil {
		return nil, s.fail(span, "error returning book", err)
	}
	if !loan.Open() {
		return nil, errs.Conflict("loan %s has already been returned", loanID)
	}

	// Step 2: Close the loan
	returnedAt := s.now().UTC()
	err = s.backend.Update(ctx, backend.Loans, loanID, backend.Record{
		"status":     string(StatusReturned),
		"returnDate": backend.FormatTime(returnedAt),
	})
	if err != nil {
		return nil, s.fail(span, "error returning book", err)
	}
	loan.Status = StatusReturned
	loan.ReturnDate = &returnedAt

	// Step 3: Restore availability
	restored, err := s.restoreCopy(ctx, loan.BookID)
	if err != nil {
		return nil, s.fail(span, "error returning book", err)
	}

	fee := s.policy.LateFee(loan.IssueDate, returnedAt)
	span.SetAttributes(attribute.Float64("loan.late_fee", fee))
	s.returned.Add(ctx, 1)
	s.fees.Add(ctx, fee)
	s.logger.Info("loan returned", "loan_id", loanID, "book_id", loan.BookID, "late_fee", fee, "book_restored", restored)

	return &Return{Loan: loan, LateFee: fee, BookRestored: restored}, nil
}

// restoreCopy increments a book's availability. It reports false without error
// when the book is gone or already has every copy on the shelf.
func (s *service) restoreCopy(ctx context.Context, bookID string) (bool, error) {
	rec, err := s.backend.Read(ctx, backend.Books, bookID)
	if errors.Is(err, backend.ErrNotFound) {
		s.logger.Warn("returned loan references a missing book", "book_id", bookID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	book, err := catalog.BookFromRecord(bookID, rec)
	if err != nil {
		return false, err
	}
	if book.Available >= book.Quantity {
		s.logger.Warn("book already fully available, not incrementing", "book_id", bookID, "available", book.Available)
		return false, nil
	}
	if err := s.backend.Update(ctx, backend.Books, bookID, backend.Record{"available": book.Available + 1}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) instrument() error {
	var err error
	if s.issued, err = s.meter.Int64Counter("libradesk.loans.issued",
		metric.WithDescription("Loans issued")); err != nil {
		return err
	}
	if s.returned, err = s.meter.Int64Counter("libradesk.loans.returned",
		metric.WithDescription("Loans returned")); err != nil {
		return err
	}
	if s.compensations, err = s.meter.Int64Counter("libradesk.loans.compensations",
		metric.WithDescription("Availability decrements rolled back after a failed issue")); err != nil {
		return err
	}
	s.fees, err = s.meter.Float64Counter("libradesk.loans.late_fees",
		metric.WithDescription("Late fees computed on return"))
	return err
}

func (s *service) fail(span trace.Span, action string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return errs.Backend(action, err)
}
