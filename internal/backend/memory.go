// internal/backend/memory.go
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Backend. Notifications are delivered synchronously,
// in write order, before the write call returns.
type Memory struct {
	mu      sync.Mutex
	deliver sync.Mutex
	docs    map[Collection]map[string]Record
	subs    map[Collection]map[int]Handler
	nextSub int
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	m := &Memory{
		docs: make(map[Collection]map[string]Record, len(Collections)),
		subs: make(map[Collection]map[int]Handler, len(Collections)),
	}
	for _, c := range Collections {
		m.docs[c] = make(map[string]Record)
		m.subs[c] = make(map[int]Handler)
	}
	return m
}

func (m *Memory) Create(ctx context.Context, coll Collection, rec Record) (string, error) {
	if !coll.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	m.mu.Lock()
	stored := rec.Clone()
	if stored == nil {
		stored = Record{}
	}
	m.docs[coll][id] = stored
	m.publishLocked(coll, Change{Op: OpUpsert, ID: id, Record: stored.Clone()})
	return id, nil
}

func (m *Memory) Update(ctx context.Context, coll Collection, id string, fields Record) error {
	if !coll.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	doc, ok := m.docs[coll][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.publishLocked(coll, Change{Op: OpUpsert, ID: id, Record: doc.Clone()})
	return nil
}

func (m *Memory) Read(ctx context.Context, coll Collection, id string) (Record, error) {
	if !coll.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[coll][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	return doc.Clone(), nil
}

// Delete removes a document. It is not part of Backend; staff never delete
// records, but other clients of the same store may.
func (m *Memory) Delete(ctx context.Context, coll Collection, id string) error {
	if !coll.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.docs[coll][id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	delete(m.docs[coll], id)
	m.publishLocked(coll, Change{Op: OpDelete, ID: id})
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, coll Collection, h Handler) (func(), error) {
	if !coll.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[coll][id] = h

	ids := make([]string, 0, len(m.docs[coll]))
	for docID := range m.docs[coll] {
		ids = append(ids, docID)
	}
	sort.Strings(ids)
	changes := make([]Change, 0, len(ids))
	for _, docID := range ids {
		changes = append(changes, Change{Op: OpUpsert, ID: docID, Record: m.docs[coll][docID].Clone()})
	}

	m.deliver.Lock()
	m.mu.Unlock()
	h(Notification{Collection: coll, Reset: true, Changes: changes})
	m.deliver.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[coll], id)
			m.mu.Unlock()
		})
	}
	return cancel, nil
}

// publishLocked must be called with m.mu held; it releases m.mu and delivers the
// change while holding the delivery lock so subscribers see writes in order.
func (m *Memory) publishLocked(coll Collection, ch Change) {
	handlers := make([]Handler, 0, len(m.subs[coll]))
	for _, h := range m.subs[coll] {
		handlers = append(handlers, h)
	}

	m.deliver.Lock()
	m.mu.Unlock()
	defer m.deliver.Unlock()

	n := Notification{Collection: coll, Changes: []Change{ch}}
	for _, h := range handlers {
		h(n)
	}
}
