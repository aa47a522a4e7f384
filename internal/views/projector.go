// internal/views/projector.go
package views

import (
	"sync"

	"libradesk/internal/store"
)

// Projector keeps the board current by recomputing it after every store update,
// and fans the new version out to watchers.
type Projector struct {
	store  *store.Store
	cancel func()

	mu       sync.RWMutex
	board    Board
	watchers map[int]chan uint64
	nextID   int
}

// NewProjector attaches a projector to s and computes the first board.
func NewProjector(s *store.Store) *Projector {
	p := &Projector{
		store:    s,
		watchers: make(map[int]chan uint64),
	}
	p.cancel = s.Subscribe(func(uint64) { p.refresh() })
	p.refresh()
	return p
}

func (p *Projector) refresh() {
	board := Project(p.store.Snapshot())

	p.mu.Lock()
	defer p.mu.Unlock()
	if board.Version < p.board.Version {
		return
	}
	p.board = board
	for _, ch := range p.watchers {
		// Watchers only need the latest version; drop the stale one.
		select {
		case <-ch:
		default:
		}
		ch <- board.Version
	}
}

// Board returns the most recent board.
func (p *Projector) Board() Board {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.board
}

// Watch returns a channel that receives the version of every new board. Slow
// readers see only the latest version.
func (p *Projector) Watch() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

// Close detaches the projector from the store.
func (p *Projector) Close() {
	p.cancel()
}
