package taskwire

import (
	"context"
	"fmt"
	"sync"
)

// PageClient fetches one baseline page by its URL.
type PageClient interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// PaginatorState identifies one state of a pagination loader.
type PaginatorState string

const (
	PaginatorNotAllLoaded PaginatorState = "notAllLoaded"
	PaginatorFailedToLoad PaginatorState = "notAllLoaded.failedToLoad"
	PaginatorLoadingMore  PaginatorState = "loadingMore"
	PaginatorAllLoaded    PaginatorState = "allLoaded"
)

// PaginatorConfig wires a pagination loader.
type PaginatorConfig struct {
	Client PageClient

	// NextPageURL is the cursor from the initial baseline response; nil
	// means everything was in the first page.
	NextPageURL *string
}

// Paginator incrementally fetches baseline pages for one task partition.
// At most one fetch is in flight at a time, enforced by the state rather
// than by callers. allLoaded is terminal: once the server reports no next
// page, further load requests are rejected.
type Paginator struct {
	partition Partition

	mu     sync.Mutex
	state  PaginatorState
	next   *string
	client PageClient
}

// NewPaginator builds a loader and settles its initial state from the
// cursor: a nil next page means all data is already loaded.
func NewPaginator(partition Partition, cfg PaginatorConfig) *Paginator {
	p := &Paginator{
		partition: partition,
		next:      cfg.NextPageURL,
		client:    cfg.Client,
	}
	p.state = p.resolve()
	return p
}

// State returns the loader's current state.
func (p *Paginator) State() PaginatorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LoadMore fetches the next page and returns its tasks. The caller merges
// them into the projection. A failed fetch parks the loader in
// failedToLoad, from which LoadMore may simply be called again.
func (p *Paginator) LoadMore(ctx context.Context) ([]Task, error) {
	p.mu.Lock()
	switch p.state {
	case PaginatorAllLoaded:
		p.mu.Unlock()
		return nil, ErrAllLoaded
	case PaginatorLoadingMore:
		p.mu.Unlock()
		return nil, ErrLoadInFlight
	}
	url := *p.next
	p.state = PaginatorLoadingMore
	p.mu.Unlock()

	page, err := p.client.FetchPage(ctx, url)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = PaginatorFailedToLoad
		return nil, fmt.Errorf("load %s page: %w", p.partition, err)
	}

	p.next = page.NextPageURL
	p.state = p.resolve()
	return page.Data, nil
}

// resolve is the indeterminate step: decide from the cursor whether more
// data exists. Callers hold p.mu.
func (p *Paginator) resolve() PaginatorState {
	if p.next == nil {
		return PaginatorAllLoaded
	}
	return PaginatorNotAllLoaded
}
