// internal/catalog/implementation.go
package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/backend"
	"libradesk/internal/errs"
)

const msgInvalidBook = "please fill in all book fields correctly"

// service implements the Service interface.
type service struct {
	backend backend.Backend
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures the inventory manager.
type Option func(*service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// NewService creates a new inventory manager writing to b.
func NewService(b backend.Backend, opts ...Option) Service {
	s := &service{
		backend: b,
		logger:  slog.Default(),
		tracer:  otel.Tracer("libradesk/catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterBook validates and persists a new book with every copy available.
// The Domain Store sees it after the backend's next notification.
func (s *service) RegisterBook(ctx context.Context, title, author string, quantity int) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.register_book",
		trace.WithAttributes(attribute.Int("book.quantity", quantity)),
	)
	defer span.End()

	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" || quantity <= 0 {
		return nil, errs.Validation(msgInvalidBook)
	}

	book := &Book{
		Title:     title,
		Author:    author,
		Quantity:  quantity,
		Available: quantity,
	}

	id, err := s.backend.Create(ctx, backend.Books, book.Record())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Backend("error adding book", err)
	}
	book.ID = id

	span.SetAttributes(attribute.String("book.id", id))
	s.logger.Info("book registered", "book_id", id, "title", title, "quantity", quantity)
	return book, nil
}

// ParseQuantity reads a quantity typed into a form. Anything but a positive
// whole number is a validation error.
func ParseQuantity(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, errs.Validation(msgInvalidBook)
	}
	return n, nil
}
