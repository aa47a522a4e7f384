// internal/store/store.go

// Package store keeps an in-process mirror of the books, members and loans
// collections, fed only by backend notifications.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"libradesk/internal/backend"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/membership"
)

// Snapshot is a point-in-time copy of the mirror. Version increases with every
// applied notification.
type Snapshot struct {
	Version uint64                       `json:"version"`
	Books   map[string]catalog.Book      `json:"books"`
	Members map[string]membership.Member `json:"members"`
	Loans   map[string]circulation.Loan  `json:"loans"`
}

// Listener is called after every applied notification with the new version.
type Listener func(version uint64)

// Store is the domain store. It has no write methods of its own; the managers
// write to the backend and changes come back through Apply.
type Store struct {
	mu      sync.RWMutex
	version uint64
	books   map[string]catalog.Book
	members map[string]membership.Member
	loans   map[string]circulation.Loan
	synced  map[backend.Collection]bool

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	logger *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		books:     make(map[string]catalog.Book),
		members:   make(map[string]membership.Member),
		loans:     make(map[string]circulation.Loan),
		synced:    make(map[backend.Collection]bool),
		listeners: make(map[int]Listener),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync subscribes the store to every collection of b. The returned stop func
// cancels all subscriptions.
func (s *Store) Sync(ctx context.Context, b backend.Backend) (stop func(), err error) {
	var cancels []func()
	stop = func() {
		for _, c := range cancels {
			c()
		}
	}
	for _, coll := range backend.Collections {
		cancel, err := b.Subscribe(ctx, coll, s.Apply)
		if err != nil {
			stop()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", coll, err)
		}
		cancels = append(cancels, cancel)
	}
	return stop, nil
}

// Apply folds a notification into the mirror and notifies listeners. Records
// that cannot be decoded are dropped and logged.
func (s *Store) Apply(n backend.Notification) {
	s.mu.Lock()
	switch n.Collection {
	case backend.Books:
		if n.Reset {
			s.books = make(map[string]catalog.Book, len(n.Changes))
		}
		applyChanges(s, n, s.books, catalog.BookFromRecord)
		for _, ch := range n.Changes {
			if b, ok := s.books[ch.ID]; ok && !b.InBounds() {
				s.logger.Warn("book availability out of bounds", "book_id", b.ID, "available", b.Available, "quantity", b.Quantity)
			}
		}
	case backend.Members:
		if n.Reset {
			s.members = make(map[string]membership.Member, len(n.Changes))
		}
		applyChanges(s, n, s.members, membership.MemberFromRecord)
	case backend.Loans:
		if n.Reset {
			s.loans = make(map[string]circulation.Loan, len(n.Changes))
		}
		applyChanges(s, n, s.loans, circulation.LoanFromRecord)
	default:
		s.mu.Unlock()
		s.logger.Warn("notification for unknown collection ignored", "collection", n.Collection)
		return
	}
	if n.Reset {
		s.synced[n.Collection] = true
	}
	s.version++
	version := s.version
	s.mu.Unlock()

	s.notify(version)
}

func applyChanges[T any](s *Store, n backend.Notification, dst map[string]T, decode func(string, backend.Record) (T, error)) {
	for _, ch := range n.Changes {
		if ch.Op == backend.OpDelete {
			delete(dst, ch.ID)
			continue
		}
		v, err := decode(ch.ID, ch.Record)
		if err != nil {
			s.logger.Warn("dropping invalid record", "collection", n.Collection, "id", ch.ID, "error", err)
			delete(dst, ch.ID)
			continue
		}
		dst[ch.ID] = v
	}
}

// Snapshot returns a copy of the current mirror.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version: s.version,
		Books:   make(map[string]catalog.Book, len(s.books)),
		Members: make(map[string]membership.Member, len(s.members)),
		Loans:   make(map[string]circulation.Loan, len(s.loans)),
	}
	for id, b := range s.books {
		snap.Books[id] = b
	}
	for id, m := range s.members {
		snap.Members[id] = m
	}
	for id, l := range s.loans {
		snap.Loans[id] = l
	}
	return snap
}

// Version returns the number of notifications applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Synced reports whether the initial contents of every collection have arrived.
func (s *Store) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range backend.Collections {
		if !s.synced[c] {
			return false
		}
	}
	return true
}

// HasOpenLoans reports whether the mirror holds a borrowed loan for memberID.
func (s *Store) HasOpenLoans(memberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.loans {
		if l.MemberID == memberID && l.Open() {
			return true
		}
	}
	return false
}

// Subscribe registers fn to run after every update. Listeners run on the
// goroutine that delivered the notification and must not block.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) notify(version uint64) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(version)
	}
}
