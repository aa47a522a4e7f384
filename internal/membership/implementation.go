// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/backend"
	"libradesk/internal/errs"
)

// service implements the Service interface.
type service struct {
	backend backend.Backend
	loans   LoanChecker
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// NewService creates a new membership manager. Outstanding loans are looked up
// through loans, which normally is the domain store.
func NewService(b backend.Backend, loans LoanChecker, opts ...Option) Service {
	s := &service{
		backend: b,
		loans:   loans,
		logger:  slog.Default(),
		tracer:  otel.Tracer("libradesk/membership"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterMember creates a new active member.
func (s *service) RegisterMember(ctx context.Context, name string) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register_member")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Validation("please enter a member name")
	}

	member := &Member{Name: name, Active: true}
	id, err := s.backend.Create(ctx, backend.Members, member.Record())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Backend("error registering member", err)
	}
	member.ID = id

	span.SetAttributes(attribute.String("member.id", id))
	s.logger.Info("member registered", "member_id", id)
	return member, nil
}

// DeactivateMember marks a member inactive unless they still hold borrowed
// books, whether or not they are already inactive. Deactivating an inactive
// member without loans succeeds without writing.
func (s *service) DeactivateMember(ctx context.Context, memberID string) error {
	ctx, span := s.tracer.Start(ctx, "membership.deactivate_member",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return errs.Validation("please select a member to deregister")
	}

	rec, err := s.backend.Read(ctx, backend.Members, memberID)
	if errors.Is(err, backend.ErrNotFound) {
		return errs.NotFound("member %s not found", memberID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errs.Backend("error deregistering member", err)
	}

	member, err := MemberFromRecord(memberID, rec)
	if err != nil {
		return errs.Backend("error deregistering member", err)
	}
	if s.loans != nil && s.loans.HasOpenLoans(memberID) {
		return errs.Conflict("cannot deregister member: outstanding loans")
	}
	if !member.Active {
		s.logger.Debug("member already inactive", "member_id", memberID)
		return nil
	}

	if err := s.backend.Update(ctx, backend.Members, memberID, backend.Record{"active": false}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errs.Backend("error deregistering member", err)
	}

	s.logger.Info("member deactivated", "member_id", memberID)
	return nil
}
