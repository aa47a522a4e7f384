package membership_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/backend"
	"libradesk/internal/errs"
	"libradesk/internal/membership"
)

type openLoans map[string]bool

func (o openLoans) HasOpenLoans(memberID string) bool {
	return o[memberID]
}

type failingBackend struct {
	backend.Backend
	createErr error
	updateErr error
}

func (f *failingBackend) Create(ctx context.Context, coll backend.Collection, rec backend.Record) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.Backend.Create(ctx, coll, rec)
}

func (f *failingBackend) Update(ctx context.Context, coll backend.Collection, id string, fields backend.Record) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Backend.Update(ctx, coll, id, fields)
}

func readMember(t *testing.T, b backend.Backend, id string) membership.Member {
	t.Helper()
	rec, err := b.Read(context.Background(), backend.Members, id)
	require.NoError(t, err)
	m, err := membership.MemberFromRecord(id, rec)
	require.NoError(t, err)
	return m
}

func TestRegisterMember(t *testing.T) {
	mem := backend.NewMemory()
	svc := membership.NewService(mem, openLoans{})

	member, err := svc.RegisterMember(context.Background(), " Ada Lovelace ")
	require.NoError(t, err)

	assert.NotEmpty(t, member.ID)
	assert.Equal(t, "Ada Lovelace", member.Name)
	assert.True(t, member.Active)
	assert.Equal(t, *member, readMember(t, mem, member.ID))
}

func TestRegisterMember_EmptyName(t *testing.T) {
	svc := membership.NewService(backend.NewMemory(), openLoans{})

	for _, name := range []string{"", "   "} {
		_, err := svc.RegisterMember(context.Background(), name)
		assert.ErrorIs(t, err, errs.ErrValidation)
	}
}

func TestRegisterMember_BackendFailure(t *testing.T) {
	svc := membership.NewService(&failingBackend{Backend: backend.NewMemory(), createErr: errors.New("quota exceeded")}, openLoans{})

	_, err := svc.RegisterMember(context.Background(), "Ada")

	assert.ErrorIs(t, err, errs.ErrBackend)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestDeactivateMember(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	loans := openLoans{}
	svc := membership.NewService(mem, loans)

	member, err := svc.RegisterMember(ctx, "Grace")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateMember(ctx, member.ID))
	assert.False(t, readMember(t, mem, member.ID).Active)

	// Deactivating again is a no-op.
	require.NoError(t, svc.DeactivateMember(ctx, member.ID))
	assert.False(t, readMember(t, mem, member.ID).Active)
}

func TestDeactivateMember_OutstandingLoans(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	loans := openLoans{}
	svc := membership.NewService(mem, loans)

	member, err := svc.RegisterMember(ctx, "Linus")
	require.NoError(t, err)
	loans[member.ID] = true

	err = svc.DeactivateMember(ctx, member.ID)

	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Contains(t, err.Error(), "outstanding loans")
	assert.True(t, readMember(t, mem, member.ID).Active)

	delete(loans, member.ID)
	require.NoError(t, svc.DeactivateMember(ctx, member.ID))
	assert.False(t, readMember(t, mem, member.ID).Active)
}

func TestDeactivateMember_InactiveMemberWithOutstandingLoans(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	loans := openLoans{}
	svc := membership.NewService(mem, loans)

	member, err := svc.RegisterMember(ctx, "Edsger")
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateMember(ctx, member.ID))

	// Loans can still be issued to inactive members.
	loans[member.ID] = true

	err = svc.DeactivateMember(ctx, member.ID)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Contains(t, err.Error(), "outstanding loans")
}

func TestDeactivateMember_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		svc := membership.NewService(backend.NewMemory(), openLoans{})
		assert.ErrorIs(t, svc.DeactivateMember(ctx, ""), errs.ErrValidation)
	})

	t.Run("unknown member", func(t *testing.T) {
		svc := membership.NewService(backend.NewMemory(), openLoans{})
		assert.ErrorIs(t, svc.DeactivateMember(ctx, "nobody"), errs.ErrNotFound)
	})

	t.Run("update fails", func(t *testing.T) {
		mem := backend.NewMemory()
		id, err := mem.Create(ctx, backend.Members, backend.Record{"name": "Ken", "active": true})
		require.NoError(t, err)

		svc := membership.NewService(&failingBackend{Backend: mem, updateErr: errors.New("timeout")}, openLoans{})
		err = svc.DeactivateMember(ctx, id)

		assert.ErrorIs(t, err, errs.ErrBackend)
		assert.True(t, readMember(t, mem, id).Active)
	})
}

func TestMemberFromRecord(t *testing.T) {
	m, err := membership.MemberFromRecord("m1", backend.Record{"name": "Ada"})
	require.NoError(t, err)
	assert.True(t, m.Active)

	m, err = membership.MemberFromRecord("m2", backend.Record{"name": "Ada", "active": "false"})
	require.NoError(t, err)
	assert.False(t, m.Active)

	_, err = membership.MemberFromRecord("m3", backend.Record{"name": 42})
	assert.Error(t, err)
}
