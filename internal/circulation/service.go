// internal/circulation/service.go
package circulation

import (
	"context"
)

// Service defines the interface for the loan manager.
type Service interface {
	IssueLoan(ctx context.Context, bookID, memberID string) (*Loan, error)
	ReturnLoan(ctx context.Context, loanID string) (*Return, error)
}
