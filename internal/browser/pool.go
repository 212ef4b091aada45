package browser

import (
	"context"
	"fmt"
	"sync"
)

// Factory opens a fresh page; the pool calls it lazily up to its max size.
type Factory func() (Page, error)

// Pool hands out pages with exclusive ownership: a page is held by exactly
// one harvest attempt between Get and Put.
type Pool struct {
	factory Factory
	pages   chan Page
	maxSize int

	mu          sync.Mutex
	currentSize int
	closed      bool
}

// NewPool creates a page pool backed by factory.
func NewPool(factory Factory, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 5
	}
	return &Pool{
		factory: factory,
		pages:   make(chan Page, maxSize),
		maxSize: maxSize,
	}
}

// Get returns an idle page, creating one if the pool is under its limit, or
// waits for a page to be returned.
func (p *Pool) Get(ctx context.Context) (Page, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.mu.Unlock()

	select {
	case page := <-p.pages:
		if page == nil {
			return nil, fmt.Errorf("pool is closed")
		}
		return page, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	if p.currentSize < p.maxSize {
		p.currentSize++
		p.mu.Unlock()
		page, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.currentSize--
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
		return page, nil
	}
	p.mu.Unlock()

	select {
	case page := <-p.pages:
		if page == nil {
			return nil, fmt.Errorf("pool is closed")
		}
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a page to the pool; if the pool is closed or full the page is
// closed instead.
func (p *Pool) Put(page Page) {
	if page == nil {
		return
	}

	// The send must stay under the mutex: Close closes p.pages while holding
	// it, and a send racing the close would panic.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		page.Close()
		return
	}

	select {
	case p.pages <- page:
	default:
		page.Close()
		p.currentSize--
	}
}

// Discard drops a page that failed mid-use so a fresh one replaces it.
func (p *Pool) Discard(page Page) {
	if page != nil {
		page.Close()
	}
	p.mu.Lock()
	if p.currentSize > 0 {
		p.currentSize--
	}
	p.mu.Unlock()
}

// Idle returns the number of pages currently waiting in the pool.
func (p *Pool) Idle() int { return len(p.pages) }

// TotalSize returns the number of pages created and not discarded.
func (p *Pool) TotalSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentSize
}

// Close closes every idle page and rejects further use.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.currentSize = 0
	close(p.pages)
	p.mu.Unlock()

	for page := range p.pages {
		page.Close()
	}
	return nil
}
