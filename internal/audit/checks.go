// internal/audit/checks.go
package audit

import (
	"libradesk/internal/store"
)

// DefaultChecks returns the consistency checks every auditor runs.
func DefaultChecks() []Check {
	return []Check{
		BooksOutOfBounds(),
		OversubscribedBooks(),
		AvailabilityDrift(),
		InactiveMembersWithLoans(),
		OrphanedLoans(),
	}
}

// BooksOutOfBounds counts books whose availability is negative or above quantity.
func BooksOutOfBounds() Check {
	return Check{
		Name:        "books_out_of_bounds",
		Description: "Every book keeps 0 <= available <= quantity",
		Measure: func(snap store.Snapshot) (float64, []string) {
			var ids []string
			for id, b := range snap.Books {
				if !b.InBounds() {
					ids = append(ids, id)
				}
			}
			return float64(len(ids)), ids
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// OversubscribedBooks counts books with more borrowed loans than copies.
func OversubscribedBooks() Check {
	return Check{
		Name:        "oversubscribed_books",
		Description: "No book has more borrowed loans than copies",
		Measure: func(snap store.Snapshot) (float64, []string) {
			open := openLoansPerBook(snap)
			var ids []string
			for id, b := range snap.Books {
				if open[id] > b.Quantity {
					ids = append(ids, id)
				}
			}
			return float64(len(ids)), ids
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// AvailabilityDrift counts books whose missing copies differ from their borrowed
// loans. A failed compensation or an issue race leaves drift behind.
func AvailabilityDrift() Check {
	return Check{
		Name:        "availability_drift",
		Description: "quantity - available equals the number of borrowed loans",
		Measure: func(snap store.Snapshot) (float64, []string) {
			open := openLoansPerBook(snap)
			var ids []string
			for id, b := range snap.Books {
				if b.Quantity-b.Available != open[id] {
					ids = append(ids, id)
				}
			}
			return float64(len(ids)), ids
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// InactiveMembersWithLoans counts deactivated members still holding books.
func InactiveMembersWithLoans() Check {
	return Check{
		Name:        "inactive_members_with_loans",
		Description: "Deactivated members hold no borrowed loans",
		Measure: func(snap store.Snapshot) (float64, []string) {
			holding := map[string]bool{}
			for _, l := range snap.Loans {
				if l.Open() {
					holding[l.MemberID] = true
				}
			}
			var ids []string
			for id, m := range snap.Members {
				if !m.Active && holding[id] {
					ids = append(ids, id)
				}
			}
			return float64(len(ids)), ids
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// OrphanedLoans counts borrowed loans whose book or member is missing.
func OrphanedLoans() Check {
	return Check{
		Name:        "orphaned_loans",
		Description: "Borrowed loans reference an existing book and member",
		Measure: func(snap store.Snapshot) (float64, []string) {
			var ids []string
			for id, l := range snap.Loans {
				if !l.Open() {
					continue
				}
				_, okBook := snap.Books[l.BookID]
				_, okMember := snap.Members[l.MemberID]
				if !okBook || !okMember {
					ids = append(ids, id)
				}
			}
			return float64(len(ids)), ids
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func openLoansPerBook(snap store.Snapshot) map[string]int {
	open := make(map[string]int)
	for _, l := range snap.Loans {
		if l.Open() {
			open[l.BookID]++
		}
	}
	return open
}
