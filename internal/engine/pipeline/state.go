package pipeline

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/anatolykoptev/statube/internal/engine/proxy"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

// StateField names an AppState field in change events.
type StateField string

const (
	FieldChannel   StateField = "current_channel"
	FieldSelection StateField = "current_video_selection"
	FieldStore     StateField = "store"
	FieldProxy     StateField = "proxy"
	FieldOffline   StateField = "offline"
)

// StateChange is published to subscribers after a setter runs.
type StateChange struct {
	Field StateField
	Value any
}

const subscriberBuffer = 16

// AppState is the single process-wide application state. Setters publish a
// StateChange to every subscriber; a subscriber whose buffer is full misses
// the event.
type AppState struct {
	mu        sync.RWMutex
	channel   string
	selection sources.Selection
	store     *store.Store
	proxy     *proxy.Pool
	offline   bool

	subMu  sync.Mutex
	subs   map[int]chan StateChange
	nextID int
}

func NewAppState(st *store.Store, pool *proxy.Pool, offline bool) *AppState {
	return &AppState{store: st, proxy: pool, offline: offline, subs: make(map[int]chan StateChange)}
}

// Subscribe returns a change stream and a function that ends the subscription.
func (a *AppState) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, subscriberBuffer)
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *AppState) publish(field StateField, v any) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- StateChange{Field: field, Value: v}:
		default:
			slog.Debug("state subscriber lagging, change dropped", slog.String("field", string(field)))
		}
	}
}

func (a *AppState) Channel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.channel
}

// SetChannel switches the current channel and clears the video selection.
func (a *AppState) SetChannel(id string) {
	a.mu.Lock()
	changed := a.channel != id
	a.channel = id
	if changed {
		a.selection = nil
	}
	a.mu.Unlock()
	a.publish(FieldChannel, id)
	if changed {
		a.publish(FieldSelection, sources.Selection(nil))
	}
}

// Selection returns a copy of the current video selection.
func (a *AppState) Selection() sources.Selection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneSelection(a.selection)
}

func (a *AppState) SetSelection(sel sources.Selection) {
	sel = cloneSelection(sel)
	a.mu.Lock()
	a.selection = sel
	a.mu.Unlock()
	a.publish(FieldSelection, cloneSelection(sel))
}

func (a *AppState) Store() *store.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

func (a *AppState) SetStore(st *store.Store) {
	a.mu.Lock()
	a.store = st
	a.mu.Unlock()
	a.publish(FieldStore, st)
}

func (a *AppState) Proxy() *proxy.Pool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.proxy
}

func (a *AppState) SetProxy(p *proxy.Pool) {
	a.mu.Lock()
	a.proxy = p
	a.mu.Unlock()
	a.publish(FieldProxy, p)
}

func (a *AppState) Offline() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.offline
}

func (a *AppState) SetOffline(off bool) {
	a.mu.Lock()
	a.offline = off
	a.mu.Unlock()
	a.publish(FieldOffline, off)
}

func cloneSelection(sel sources.Selection) sources.Selection {
	if sel == nil {
		return nil
	}
	out := make(sources.Selection, len(sel))
	for ch, ids := range sel {
		out[ch] = slices.Clone(ids)
	}
	return out
}
