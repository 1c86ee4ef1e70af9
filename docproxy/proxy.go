package docproxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Fetcher returns the authoritative current snapshot of the remote document.
// It must be safe to call repeatedly.
type Fetcher[D any] func(ctx context.Context) (D, error)

// Mutation transforms the most recent known document value into the value to carry forward.
// It typically writes the new value to the remote document before returning it.
type Mutation[D any] func(ctx context.Context, current D) (D, error)

// State is the state of a Proxy's drain state machine.
type State int

const (
	// Idle means the queue is empty and no fetch is in flight.
	Idle State = iota

	// Draining means the queue is non-empty and requests are processed one at a time.
	Draining
)

// String provides a string representation of State for logging and debugging.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// request is one queued Change call. done is buffered and receives exactly one result.
type request[D any] struct {
	ctx    context.Context
	mutate Mutation[D]
	done   chan error
}

// deferred is the one-shot settled value of a drain cycle.
type deferred[D any] struct {
	done  chan struct{}
	value D
	err   error
}

func newDeferred[D any]() *deferred[D] {
	return &deferred[D]{done: make(chan struct{})}
}

func (d *deferred[D]) resolve(value D) {
	d.value = value
	close(d.done)
}

func (d *deferred[D]) reject(err error) {
	d.err = err
	close(d.done)
}

func (d *deferred[D]) wait(ctx context.Context) (D, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero D
		return zero, ctx.Err()
	}
}

// Proxy serializes reads and mutations of one remote document for all callers sharing it.
//
// The mutex only guards the state transitions (enqueue, fetch settled, mutation settled);
// it is never held while the Fetcher or a Mutation runs.
type Proxy[D any] struct {
	fetch    Fetcher[D]
	settings settings

	mu      sync.Mutex
	state   State
	queue   []*request[D]
	settled *deferred[D]
}

// New creates a Proxy for the document returned by fetch.
func New[D any](fetch Fetcher[D], options ...Option) (*Proxy[D], error) {
	if fetch == nil {
		return nil, ErrNilFetcher
	}

	s, err := buildSettings(options...)
	if err != nil {
		return nil, err
	}

	return newProxy(fetch, s), nil
}

func newProxy[D any](fetch Fetcher[D], s settings) *Proxy[D] {
	return &Proxy[D]{
		fetch:    fetch,
		settings: s,
		state:    Idle,
		settled:  newDeferred[D](),
	}
}

// Name returns the document name the Proxy was configured with.
func (p *Proxy[D]) Name() string {
	return p.settings.name
}

// State returns the current state of the drain state machine.
func (p *Proxy[D]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Pending returns the number of queued requests, including the one currently being applied.
func (p *Proxy[D]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// Get returns the current document value.
//
// While Idle it calls the Fetcher directly, every time; concurrent idle calls each fetch.
// While Draining it does not fetch but waits for the active cycle to finish and returns
// that cycle's final value, so a Get issued after a Change observes the Change's effect.
// Canceling ctx only abandons the wait.
func (p *Proxy[D]) Get(ctx context.Context) (D, error) {
	p.mu.Lock()
	if p.state == Idle {
		p.mu.Unlock()
		return p.fetchIdle(ctx)
	}
	settled := p.settled
	p.mu.Unlock()

	return settled.wait(ctx)
}

// Change enqueues mutation and waits until it has been applied.
//
// It returns nil when the mutation succeeded, an error matching ErrMutationFailed when the
// mutation failed, and an error matching ErrFetchingDocumentFailed when the fetch at the start
// of the cycle failed. The result document is not returned; use Get.
//
// Canceling ctx makes Change return ctx.Err() early, but the request keeps its queue position
// and its mutation still runs with that same ctx.
func (p *Proxy[D]) Change(ctx context.Context, mutation Mutation[D]) error {
	if mutation == nil {
		return ErrNilMutation
	}

	req := &request[D]{
		ctx:    ctx,
		mutate: mutation,
		done:   make(chan error, 1),
	}

	p.mu.Lock()
	p.queue = append(p.queue, req)
	startsCycle := p.state == Idle
	if startsCycle {
		p.state = Draining
	}
	p.mu.Unlock()

	if startsCycle {
		go p.drain(context.WithoutCancel(ctx))
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs one drain cycle: one fetch, then every queued mutation in FIFO order.
func (p *Proxy[D]) drain(ctx context.Context) {
	cycle := p.settings.startCycle(ctx)

	fetchStart := time.Now()
	current, fetchErr := p.callFetch(cycle.ctx)
	cycle.recordFetch(time.Since(fetchStart), fetchErr)

	if fetchErr != nil {
		p.mu.Lock()
		rejected := p.queue
		p.queue = nil
		settled := p.settled
		p.settled = newDeferred[D]()
		p.state = Idle
		p.mu.Unlock()

		for _, req := range rejected {
			req.done <- fetchErr
		}
		settled.reject(fetchErr)
		cycle.finishFetchFailed(fetchErr, len(rejected))

		return
	}

	for {
		p.mu.Lock()
		head := p.queue[0]
		p.mu.Unlock()

		start := time.Now()
		next, mutationErr := p.callMutation(head, current)
		cycle.recordMutation(head.ctx, time.Since(start), mutationErr)

		if mutationErr == nil {
			current = next
		}

		p.mu.Lock()
		p.queue[0] = nil
		p.queue = p.queue[1:]
		var settled *deferred[D]
		if len(p.queue) == 0 {
			p.queue = nil
			settled = p.settled
			p.settled = newDeferred[D]()
			p.state = Idle
		}
		p.mu.Unlock()

		head.done <- mutationErr

		if settled != nil {
			settled.resolve(current)
			cycle.finishSuccess()

			return
		}
	}
}

// fetchIdle serves a Get while no cycle is active.
func (p *Proxy[D]) fetchIdle(ctx context.Context) (D, error) {
	observer, ctx := p.settings.startGet(ctx)

	start := time.Now()
	document, err := p.callFetch(ctx)
	observer.finish(time.Since(start), err)

	return document, err
}

// callFetch invokes the Fetcher, applying the fetch timeout and turning a panic into an error.
func (p *Proxy[D]) callFetch(ctx context.Context) (document D, err error) {
	if p.settings.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.fetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			var zero D
			document = zero
			err = errors.Join(ErrFetchingDocumentFailed, ErrFetcherPanicked, fmt.Errorf("%v", r))
		}
	}()

	document, err = p.fetch(ctx)
	if err != nil {
		var zero D
		return zero, errors.Join(ErrFetchingDocumentFailed, err)
	}

	return document, nil
}

// callMutation invokes one request's mutation, turning a panic into an error for that caller only.
func (p *Proxy[D]) callMutation(req *request[D], current D) (next D, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = current
			err = errors.Join(ErrMutationFailed, ErrMutationPanicked, fmt.Errorf("%v", r))
		}
	}()

	next, err = req.mutate(req.ctx, current)
	if err != nil {
		return current, errors.Join(ErrMutationFailed, err)
	}

	return next, nil
}
