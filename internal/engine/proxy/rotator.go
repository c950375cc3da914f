package proxy

import (
	"context"
	"net/url"
	"sync"
)

// DefaultReuse is how many requests share one endpoint before rotating.
const DefaultReuse = 2

// Rotator hands out the same endpoint Reuse times before asking the pool for
// the next one. It satisfies engine.ProxySource.
type Rotator struct {
	pool  *Pool
	reuse int
	wait  bool

	mu      sync.Mutex
	current *Record
	uses    int
}

// NewRotator wraps pool. wait makes Next block until a proxy is available.
func NewRotator(pool *Pool, wait bool) *Rotator {
	return &Rotator{pool: pool, reuse: DefaultReuse, wait: wait}
}

// Next returns the proxy for the next request.
func (r *Rotator) Next(ctx context.Context) (*url.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.uses < r.reuse {
		r.uses++
		return r.current.URL(), nil
	}
	rec, err := r.pool.Get(ctx, r.wait)
	if err != nil {
		r.current = nil
		return nil, err
	}
	r.current, r.uses = &rec, 1
	return rec.URL(), nil
}

// Fail drops a dead endpoint from the pool and forces rotation.
func (r *Rotator) Fail(u *url.URL) {
	if u == nil {
		return
	}
	r.mu.Lock()
	if r.current != nil && r.current.Endpoint == u.Host {
		r.current = nil
	}
	r.mu.Unlock()
	r.pool.Remove(u.Host)
}
