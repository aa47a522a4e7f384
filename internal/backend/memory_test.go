package backend_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/backend"
)

type recorder struct {
	mu    sync.Mutex
	notes []backend.Notification
}

func (r *recorder) handle(n backend.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []backend.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]backend.Notification(nil), r.notes...)
}

func TestMemory_CreateReadUpdate(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	id, err := mem.Create(ctx, backend.Books, backend.Record{"title": "Dune", "author": "Frank Herbert", "quantity": 2, "available": 2})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, mem.Update(ctx, backend.Books, id, backend.Record{"available": 1}))

	rec, err := mem.Read(ctx, backend.Books, id)
	require.NoError(t, err)
	assert.Equal(t, "Dune", rec["title"])
	assert.Equal(t, 1, rec["available"])
	assert.Equal(t, 2, rec["quantity"])
}

func TestMemory_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	id, err := mem.Create(ctx, backend.Members, backend.Record{"name": "Ada", "active": true})
	require.NoError(t, err)

	rec, err := mem.Read(ctx, backend.Members, id)
	require.NoError(t, err)
	rec["active"] = false

	again, err := mem.Read(ctx, backend.Members, id)
	require.NoError(t, err)
	assert.Equal(t, true, again["active"])
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	_, err := mem.Read(ctx, backend.Loans, "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	err = mem.Update(ctx, backend.Loans, "missing", backend.Record{"status": "returned"})
	assert.ErrorIs(t, err, backend.ErrNotFound)

	err = mem.Delete(ctx, backend.Loans, "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestMemory_UnknownCollection(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	_, err := mem.Create(ctx, backend.Collection("shelves"), backend.Record{})
	assert.ErrorIs(t, err, backend.ErrUnknownCollection)

	_, err = mem.Subscribe(ctx, backend.Collection("shelves"), func(backend.Notification) {})
	assert.ErrorIs(t, err, backend.ErrUnknownCollection)
}

func TestMemory_SubscribeDeliversSnapshotThenChanges(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	first, err := mem.Create(ctx, backend.Members, backend.Record{"name": "Ada", "active": true})
	require.NoError(t, err)

	rec := &recorder{}
	cancel, err := mem.Subscribe(ctx, backend.Members, rec.handle)
	require.NoError(t, err)

	second, err := mem.Create(ctx, backend.Members, backend.Record{"name": "Grace", "active": true})
	require.NoError(t, err)
	require.NoError(t, mem.Update(ctx, backend.Members, first, backend.Record{"active": false}))
	require.NoError(t, mem.Delete(ctx, backend.Members, second))

	// Writes to other collections are not delivered.
	_, err = mem.Create(ctx, backend.Books, backend.Record{"title": "x"})
	require.NoError(t, err)

	notes := rec.all()
	require.Len(t, notes, 4)

	assert.True(t, notes[0].Reset)
	require.Len(t, notes[0].Changes, 1)
	assert.Equal(t, first, notes[0].Changes[0].ID)

	assert.False(t, notes[1].Reset)
	assert.Equal(t, backend.OpUpsert, notes[1].Changes[0].Op)
	assert.Equal(t, second, notes[1].Changes[0].ID)

	assert.Equal(t, first, notes[2].Changes[0].ID)
	assert.Equal(t, false, notes[2].Changes[0].Record["active"])
	assert.Equal(t, "Ada", notes[2].Changes[0].Record["name"])

	assert.Equal(t, backend.OpDelete, notes[3].Changes[0].Op)
	assert.Equal(t, second, notes[3].Changes[0].ID)

	cancel()
	_, err = mem.Create(ctx, backend.Members, backend.Record{"name": "Linus", "active": true})
	require.NoError(t, err)
	assert.Len(t, rec.all(), 4)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mem := backend.NewMemory()

	_, err := mem.Create(ctx, backend.Books, backend.Record{"title": "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
