// internal/membership/service.go
package membership

import (
	"context"
)

// Service defines the interface for the membership manager.
type Service interface {
	RegisterMember(ctx context.Context, name string) (*Member, error)
	DeactivateMember(ctx context.Context, memberID string) error
}

// LoanChecker answers whether a member still holds borrowed books. The domain
// store implements it from its mirror of the loans collection.
type LoanChecker interface {
	HasOpenLoans(memberID string) bool
}
