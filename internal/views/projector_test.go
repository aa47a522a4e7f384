package views_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/backend"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/membership"
	"libradesk/internal/store"
	"libradesk/internal/views"
)

func TestProjector_RecomputesOnEveryChange(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	s := store.New()
	stop, err := s.Sync(ctx, mem)
	require.NoError(t, err)
	defer stop()

	p := views.NewProjector(s)
	defer p.Close()

	versions, cancel := p.Watch()
	defer cancel()

	book, err := catalog.NewService(mem).RegisterBook(ctx, "Dune", "Frank Herbert", 1)
	require.NoError(t, err)
	member, err := membership.NewService(mem, s).RegisterMember(ctx, "Ada")
	require.NoError(t, err)

	board := p.Board()
	assert.Equal(t, []string{book.ID}, bookIDs(board.IssuableBooks))
	assert.Equal(t, []string{member.ID}, memberIDs(board.SelectableMembers))

	loan, err := circulation.NewService(mem).IssueLoan(ctx, book.ID, member.ID)
	require.NoError(t, err)

	board = p.Board()
	assert.Empty(t, board.IssuableBooks)
	require.Len(t, board.OpenLoans, 1)
	assert.Equal(t, loan.ID, board.OpenLoans[0].Loan.ID)

	// The watcher holds only the latest version.
	select {
	case v := <-versions:
		assert.Equal(t, board.Version, v)
	default:
		t.Fatal("no version delivered")
	}
	select {
	case v := <-versions:
		t.Fatalf("unexpected extra version %d", v)
	default:
	}
}

func TestProjector_Close(t *testing.T) {
	s := store.New()
	p := views.NewProjector(s)
	p.Close()

	s.Apply(backend.Notification{Collection: backend.Books, Reset: true, Changes: []backend.Change{
		{Op: backend.OpUpsert, ID: "b1", Record: backend.Record{"title": "A", "author": "B", "quantity": 1, "available": 1}},
	}})

	assert.Empty(t, p.Board().Books)
}
