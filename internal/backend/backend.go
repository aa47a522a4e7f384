// internal/backend/backend.go

// Package backend defines the remote document store the managers write to and the
// Domain Store listens to, with an in-memory and a PostgreSQL implementation.
package backend

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrClosed            = errors.New("backend closed")
)

// Collection names one of the three mirrored collections.
type Collection string

const (
	Books   Collection = "books"
	Members Collection = "members"
	Loans   Collection = "loans"
)

// Collections lists every collection in subscription order.
var Collections = []Collection{Books, Members, Loans}

func (c Collection) Valid() bool {
	switch c {
	case Books, Members, Loans:
		return true
	}
	return false
}

// Record is an untyped document as the backend stores it. Keys use the
// canonical camelCase field names (title, bookId, issueDate, ...).
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op is the kind of a single document change.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Change is one document-level change. Record is nil for deletes.
type Change struct {
	Op     Op
	ID     string
	Record Record
}

// Notification is delivered to subscribers. When Reset is set, Changes holds the
// complete contents of the collection and replaces whatever the subscriber had.
type Notification struct {
	Collection Collection
	Reset      bool
	Changes    []Change
}

// Handler receives notifications. Handlers must not block for long; backends may
// call them from their own goroutines.
type Handler func(Notification)

// Backend is the persistence and realtime collaborator.
type Backend interface {
	Create(ctx context.Context, coll Collection, rec Record) (string, error)
	Update(ctx context.Context, coll Collection, id string, fields Record) error
	Read(ctx context.Context, coll Collection, id string) (Record, error)
	// Subscribe delivers the current contents as a Reset notification and then
	// every subsequent change until the returned cancel func is called.
	Subscribe(ctx context.Context, coll Collection, h Handler) (cancel func(), err error)
}
