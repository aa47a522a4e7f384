// internal/views/views.go

// Package views derives the lists the front end renders from a store snapshot.
package views

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/membership"
	"libradesk/internal/store"
)

// OpenLoan is a borrowed loan joined with its book and member.
type OpenLoan struct {
	Loan   circulation.Loan  `json:"loan"`
	Book   catalog.Book      `json:"book"`
	Member membership.Member `json:"member"`
}

// Label is the text shown in the return selector.
func (o OpenLoan) Label() string {
	return o.Book.Title + " (borrowed by " + o.Member.Name + ")"
}

// IssuedOn formats the issue date for the open loans table.
func (o OpenLoan) IssuedOn() string {
	return o.Loan.IssueDate.Format(time.DateOnly)
}

// Board holds every derived list for one snapshot version.
type Board struct {
	Version           uint64              `json:"version"`
	Books             []catalog.Book      `json:"books"`
	Members           []membership.Member `json:"members"`
	IssuableBooks     []catalog.Book      `json:"issuableBooks"`
	SelectableMembers []membership.Member `json:"selectableMembers"`
	OpenLoans         []OpenLoan          `json:"openLoans"`
}

// Project computes the board for snap.
func Project(snap store.Snapshot) Board {
	return Board{
		Version:           snap.Version,
		Books:             Books(snap),
		Members:           Members(snap),
		IssuableBooks:     IssuableBooks(snap),
		SelectableMembers: SelectableMembers(snap),
		OpenLoans:         OpenLoans(snap),
	}
}

// Books lists every book ordered by title.
func Books(snap store.Snapshot) []catalog.Book {
	out := make([]catalog.Book, 0, len(snap.Books))
	for _, b := range snap.Books {
		out = append(out, b)
	}
	slices.SortFunc(out, compareBooks)
	return out
}

// IssuableBooks lists books with at least one copy on the shelf.
func IssuableBooks(snap store.Snapshot) []catalog.Book {
	out := make([]catalog.Book, 0, len(snap.Books))
	for _, b := range snap.Books {
		if b.Available > 0 {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, compareBooks)
	return out
}

// Members lists every member ordered by name.
func Members(snap store.Snapshot) []membership.Member {
	out := make([]membership.Member, 0, len(snap.Members))
	for _, m := range snap.Members {
		out = append(out, m)
	}
	slices.SortFunc(out, compareMembers)
	return out
}

// SelectableMembers lists active members.
func SelectableMembers(snap store.Snapshot) []membership.Member {
	out := make([]membership.Member, 0, len(snap.Members))
	for _, m := range snap.Members {
		if m.Active {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, compareMembers)
	return out
}

// OpenLoans lists borrowed loans, oldest first. Loans whose book or member is
// not in the snapshot are left out.
func OpenLoans(snap store.Snapshot) []OpenLoan {
	out := make([]OpenLoan, 0)
	for _, l := range snap.Loans {
		if !l.Open() {
			continue
		}
		b, ok := snap.Books[l.BookID]
		if !ok {
			continue
		}
		m, ok := snap.Members[l.MemberID]
		if !ok {
			continue
		}
		out = append(out, OpenLoan{Loan: l, Book: b, Member: m})
	}
	slices.SortFunc(out, func(a, b OpenLoan) int {
		if c := a.Loan.IssueDate.Compare(b.Loan.IssueDate); c != 0 {
			return c
		}
		return cmp.Compare(a.Loan.ID, b.Loan.ID)
	})
	return out
}

func compareBooks(a, b catalog.Book) int {
	if c := cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareMembers(a, b membership.Member) int {
	if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
