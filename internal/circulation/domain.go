// internal/circulation/domain.go
package circulation

import (
	"fmt"
	"time"

	"libradesk/internal/backend"
)

// Status is the state of a loan. borrowed -> returned is the only transition.
type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusReturned Status = "returned"
)

func (s Status) Valid() bool {
	return s == StatusBorrowed || s == StatusReturned
}

// Loan is one borrowing of one copy of a book by a member.
type Loan struct {
	ID         string     `json:"id"`
	BookID     string     `json:"bookId"`
	MemberID   string     `json:"memberId"`
	IssueDate  time.Time  `json:"issueDate"`
	ReturnDate *time.Time `json:"returnDate"`
	Status     Status     `json:"status"`
}

// Open reports whether the copy is still out.
func (l Loan) Open() bool {
	return l.Status == StatusBorrowed
}

// Record converts the loan into its backend document (without the id).
func (l Loan) Record() backend.Record {
	rec := backend.Record{
		"bookId":     l.BookID,
		"memberId":   l.MemberID,
		"issueDate":  backend.FormatTime(l.IssueDate),
		"returnDate": nil,
		"status":     string(l.Status),
	}
	if l.ReturnDate != nil {
		rec["returnDate"] = backend.FormatTime(*l.ReturnDate)
	}
	return rec
}

// LoanFromRecord decodes a backend document. Besides the canonical names it
// accepts snake_case keys and userId for the member reference.
func LoanFromRecord(id string, rec backend.Record) (Loan, error) {
	l := Loan{ID: id}
	var err error
	if l.BookID, err = rec.String("bookId", "book_id"); err != nil {
		return Loan{}, fmt.Errorf("loan %s: %w", id, err)
	}
	if l.MemberID, err = rec.String("memberId", "member_id", "userId", "user_id"); err != nil {
		return Loan{}, fmt.Errorf("loan %s: %w", id, err)
	}
	if l.BookID == "" || l.MemberID == "" {
		return Loan{}, fmt.Errorf("loan %s: missing book or member reference", id)
	}

	issued, err := rec.Time("issueDate", "issue_date")
	if err != nil {
		return Loan{}, fmt.Errorf("loan %s: %w", id, err)
	}
	if issued == nil {
		return Loan{}, fmt.Errorf("loan %s: missing issue date", id)
	}
	l.IssueDate = *issued

	if l.ReturnDate, err = rec.Time("returnDate", "return_date"); err != nil {
		return Loan{}, fmt.Errorf("loan %s: %w", id, err)
	}

	status, err := rec.String("status")
	if err != nil {
		return Loan{}, fmt.Errorf("loan %s: %w", id, err)
	}
	l.Status = Status(status)
	if !l.Status.Valid() {
		return Loan{}, fmt.Errorf("loan %s: unknown status %q", id, status)
	}
	return l, nil
}

// Return is the outcome of returning a loan. LateFee is shown to staff and
// not stored anywhere.
type Return struct {
	Loan         Loan    `json:"loan"`
	LateFee      float64 `json:"lateFee"`
	BookRestored bool    `json:"bookRestored"`
}
