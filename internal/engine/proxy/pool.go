package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"golang.org/x/sync/errgroup"
)

// Pool defaults.
const (
	DefaultLimit              = 50
	DefaultWorkers            = 3
	DefaultValidateTimeout    = 3 * time.Second
	DefaultRefetchInterval    = 30 * time.Second
	DefaultRevalidateInterval = 10 * time.Minute
	DefaultValidateURL        = "https://www.youtube.com/generate_204"

	// CacheKey is the cache document holding the warm set.
	CacheKey = "valid_proxies"

	randomEvery     = 10 // every Nth Get returns a random survivor
	validateBatch   = 16
	validateWorkers = 8
)

// Validator checks one proxy; nil means usable.
type Validator func(ctx context.Context, r Record) error

// Options configures a Pool. Zero values pick the defaults.
type Options struct {
	Limit              int
	Workers            int
	ListURL            string // plain-text candidate list
	ValidateURL        string
	ValidateTimeout    time.Duration
	RefetchInterval    time.Duration
	RevalidateInterval time.Duration
	Cache              *engine.Cache // nil = warm set not persisted
	Client             *http.Client  // for the candidate list
	Validator          Validator     // nil = GET ValidateURL through the proxy
}

type warmSet struct {
	Proxies []Record `json:"proxies"`
}

// Pool is a bounded set of validated proxies. All fields behind mu.
type Pool struct {
	opts Options

	mu         sync.Mutex
	valid      []Record
	candidates []Record
	counter    uint64
	rnd        *rand.Rand
	avail      chan struct{} // closed and replaced on every Add

	fetchMu      sync.Mutex
	lastFetch    time.Time
	revalidating atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates an empty pool; call Start to begin filling it.
func NewPool(opts Options) *Pool {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ValidateURL == "" {
		opts.ValidateURL = DefaultValidateURL
	}
	if opts.ValidateTimeout <= 0 {
		opts.ValidateTimeout = DefaultValidateTimeout
	}
	if opts.RefetchInterval <= 0 {
		opts.RefetchInterval = DefaultRefetchInterval
	}
	if opts.RevalidateInterval <= 0 {
		opts.RevalidateInterval = DefaultRevalidateInterval
	}
	p := &Pool{
		opts:   opts,
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		avail:  make(chan struct{}),
		stopCh: make(chan struct{}),
	}
	if p.opts.Validator == nil {
		p.opts.Validator = p.validateHTTP
	}
	return p
}

// Start loads the warm set from the cache and launches the validator workers.
func (p *Pool) Start(ctx context.Context) {
	p.loadWarm(ctx)
	slog.Info("proxy: pool starting",
		slog.Int("warm", p.Len()), slog.Int("limit", p.opts.Limit), slog.Int("workers", p.opts.Workers))
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

// Stop signals the workers and waits for them to exit.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Get vends a proxy: round-robin by request count, a uniformly random survivor
// on every 10th call. With an empty pool it returns ErrNoProxyAvailable, or
// blocks until one arrives when wait is set.
func (p *Pool) Get(ctx context.Context, wait bool) (Record, error) {
	for {
		p.mu.Lock()
		if n := len(p.valid); n > 0 {
			p.counter++
			var rec Record
			if p.counter%randomEvery == 0 {
				rec = p.valid[p.rnd.IntN(n)]
			} else {
				rec = p.valid[p.counter%uint64(n)]
			}
			p.mu.Unlock()
			return rec, nil
		}
		ch := p.avail
		p.mu.Unlock()

		if !wait {
			return Record{}, engine.ErrNoProxyAvailable
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return Record{}, fmt.Errorf("%w: %w", engine.ErrCancelled, ctx.Err())
		}
	}
}

// Add inserts a validated record. Returns false when full or already present.
func (p *Pool) Add(rec Record) bool {
	p.mu.Lock()
	if len(p.valid) >= p.opts.Limit || p.indexLocked(rec.Endpoint) >= 0 {
		p.mu.Unlock()
		return false
	}
	p.valid = append(p.valid, rec)
	close(p.avail)
	p.avail = make(chan struct{})
	p.mu.Unlock()

	p.persist()
	return true
}

// Remove drops endpoint from the validated set.
func (p *Pool) Remove(endpoint string) {
	p.mu.Lock()
	i := p.indexLocked(endpoint)
	if i < 0 {
		p.mu.Unlock()
		return
	}
	p.valid = slices.Delete(p.valid, i, i+1)
	p.mu.Unlock()

	slog.Debug("proxy: removed", slog.String("endpoint", endpoint))
	p.persist()
}

// Len returns the number of validated proxies.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.valid)
}

// Snapshot returns a copy of the validated set.
func (p *Pool) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.valid)
}

func (p *Pool) indexLocked(endpoint string) int {
	return slices.IndexFunc(p.valid, func(r Record) bool { return r.Endpoint == endpoint })
}

// --- Workers ---

func (p *Pool) worker(ctx context.Context) {
	for {
		if p.Len() >= p.opts.Limit {
			if !p.sleep(ctx, p.opts.RevalidateInterval) {
				return
			}
			p.revalidate(ctx)
			continue
		}

		batch := p.takeCandidates(validateBatch)
		if len(batch) == 0 {
			if err := p.refill(ctx); err != nil {
				slog.Warn("proxy: candidate list fetch failed", slog.Any("error", err))
			}
			batch = p.takeCandidates(validateBatch)
		}
		if len(batch) == 0 {
			if !p.sleep(ctx, p.opts.RefetchInterval) {
				return
			}
			continue
		}
		p.validateAll(ctx, batch)
		if ctx.Err() != nil {
			return
		}
	}
}

// sleep waits d; false means the pool is stopping.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-p.stopCh:
		return false
	}
}

func (p *Pool) takeCandidates(n int) []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	n = min(n, len(p.candidates))
	batch := slices.Clone(p.candidates[:n])
	p.candidates = p.candidates[n:]
	return batch
}

// refill fetches the candidate list at most once per refetch interval across workers.
func (p *Pool) refill(ctx context.Context) error {
	if p.opts.ListURL == "" {
		return nil
	}
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()
	if !p.lastFetch.IsZero() && time.Since(p.lastFetch) < p.opts.RefetchInterval {
		return nil
	}
	p.lastFetch = time.Now()

	body, err := engine.FetchDirect(ctx, p.opts.Client, p.opts.ListURL, 4<<20)
	if err != nil {
		return err
	}
	fresh := ParseCandidates(string(body))

	p.mu.Lock()
	added := 0
	for _, rec := range fresh {
		if p.indexLocked(rec.Endpoint) >= 0 {
			continue
		}
		p.candidates = append(p.candidates, rec)
		added++
	}
	p.mu.Unlock()
	slog.Debug("proxy: candidates fetched", slog.Int("listed", len(fresh)), slog.Int("queued", added))
	return nil
}

// validateAll checks batch with bounded concurrency and adds the survivors.
func (p *Pool) validateAll(ctx context.Context, batch []Record) {
	var g errgroup.Group
	g.SetLimit(validateWorkers)
	for _, rec := range batch {
		g.Go(func() error {
			if !p.check(ctx, rec) {
				return nil
			}
			rec.LastValidatedAt = time.Now()
			p.Add(rec)
			return nil
		})
	}
	g.Wait()
}

// revalidate re-checks the whole set and drops dead endpoints. One worker at a time.
func (p *Pool) revalidate(ctx context.Context) {
	if !p.revalidating.CompareAndSwap(false, true) {
		return
	}
	defer p.revalidating.Store(false)

	var g errgroup.Group
	g.SetLimit(validateWorkers)
	var dead atomic.Int32
	for _, rec := range p.Snapshot() {
		g.Go(func() error {
			if p.check(ctx, rec) {
				p.touch(rec.Endpoint)
				return nil
			}
			dead.Add(1)
			p.Remove(rec.Endpoint)
			return nil
		})
	}
	g.Wait()
	slog.Info("proxy: revalidated", slog.Int("alive", p.Len()), slog.Int("dropped", int(dead.Load())))
}

func (p *Pool) touch(endpoint string) {
	p.mu.Lock()
	if i := p.indexLocked(endpoint); i >= 0 {
		p.valid[i].LastValidatedAt = time.Now()
	}
	p.mu.Unlock()
}

func (p *Pool) check(ctx context.Context, rec Record) bool {
	err := p.opts.Validator(ctx, rec)
	engine.IncrProxyValidation(err == nil)
	return err == nil
}

// validateHTTP issues one GET to ValidateURL through rec.
func (p *Pool) validateHTTP(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ValidateTimeout)
	defer cancel()
	client := &http.Client{
		Timeout:   p.opts.ValidateTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(rec.URL()), DisableKeepAlives: true},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.ValidateURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", engine.RandomUserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("validate %s: status %d", rec.Endpoint, resp.StatusCode)
	}
	return nil
}

// --- Persistence ---

func (p *Pool) loadWarm(ctx context.Context) {
	if p.opts.Cache == nil {
		return
	}
	ws, ok := engine.CacheLoadJSON[warmSet](ctx, p.opts.Cache, CacheKey)
	if !ok {
		return
	}
	p.mu.Lock()
	for _, rec := range ws.Proxies {
		if len(p.valid) >= p.opts.Limit {
			break
		}
		if rec.Endpoint != "" && p.indexLocked(rec.Endpoint) < 0 {
			p.valid = append(p.valid, rec)
		}
	}
	p.mu.Unlock()
}

func (p *Pool) persist() {
	if p.opts.Cache == nil {
		return
	}
	if err := p.opts.Cache.Save(context.Background(), CacheKey, warmSet{Proxies: p.Snapshot()}); err != nil {
		slog.Warn("proxy: persist failed", slog.Any("error", err))
	}
}
