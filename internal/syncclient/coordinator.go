// Package syncclient keeps a client's view of server resources fresh. It
// combines on-demand fetches, low-frequency polling and debounced push
// invalidations over one shared cache.
package syncclient

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultCacheTime = 10 * time.Second
	DefaultDebounce  = time.Second
)

// Options configure one subscription. Zero values take the defaults; a
// negative Interval disables polling.
type Options struct {
	Interval  time.Duration
	CacheTime time.Duration
	Immediate bool
	// Debounce is the window push notifications for the key are collapsed in.
	Debounce time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	if o.CacheTime <= 0 {
		o.CacheTime = DefaultCacheTime
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	return o
}

type FetchFunc[T any] func(ctx context.Context) (T, error)

// Snapshot is the subscriber-visible state. A failed fetch sets Err but keeps
// the last good Data.
type Snapshot[T any] struct {
	Data      T
	HasData   bool
	Loading   bool
	Err       error
	FetchedAt time.Time
}

type subscriber interface {
	subscriptionID() string
	resourceKey() string
	pushed()
	close()
}

// Coordinator owns the cache, the debouncer and the set of live
// subscriptions. Push listeners call Notify and NotifyAll.
type Coordinator struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cache     *Cache
	debouncer *Debouncer
	logger    zerolog.Logger

	mu     sync.Mutex
	subs   map[string]map[string]subscriber
	nextID uint64
	closed bool
}

func NewCoordinator(cache *Cache, logger zerolog.Logger) *Coordinator {
	if cache == nil {
		cache = NewCache()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:       ctx,
		cancel:    cancel,
		cache:     cache,
		debouncer: NewDebouncer(),
		logger:    logger.With().Str("component", "sync").Logger(),
		subs:      make(map[string]map[string]subscriber),
	}
}

func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// Notify marks key as changed on the server. Every subscription of key
// refetches once the debounce window passes without another notification.
func (c *Coordinator) Notify(key string) {
	for _, sub := range c.subscribers(key) {
		sub.pushed()
	}
}

// NotifyAll invalidates every subscribed key.
func (c *Coordinator) NotifyAll() {
	for _, sub := range c.subscribers("") {
		sub.pushed()
	}
}

// Keys lists the resource keys with at least one live subscription.
func (c *Coordinator) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.subs))
	for key := range c.subs {
		keys = append(keys, key)
	}
	return keys
}

// Close unsubscribes everything and cancels in-flight fetches.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var all []subscriber
	for _, group := range c.subs {
		for _, sub := range group {
			all = append(all, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
	c.debouncer.Stop()
	c.cancel()
}

func (c *Coordinator) subscribers(key string) []subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []subscriber
	for k, group := range c.subs {
		if key != "" && k != key {
			continue
		}
		for _, sub := range group {
			out = append(out, sub)
		}
	}
	return out
}

func (c *Coordinator) register(sub subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	group, ok := c.subs[sub.resourceKey()]
	if !ok {
		group = make(map[string]subscriber)
		c.subs[sub.resourceKey()] = group
	}
	group[sub.subscriptionID()] = sub
	return true
}

func (c *Coordinator) unregister(sub subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	group := c.subs[sub.resourceKey()]
	delete(group, sub.subscriptionID())
	if len(group) == 0 {
		delete(c.subs, sub.resourceKey())
	}
}

func (c *Coordinator) newID(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return key + "#" + strconv.FormatUint(c.nextID, 10)
}

// Subscription is one consumer's view of a resource key.
type Subscription[T any] struct {
	c     *Coordinator
	id    string
	key   string
	fetch FetchFunc[T]
	opts  Options

	mu         sync.Mutex
	state      Snapshot[T]
	inFlight   bool
	flightDone chan struct{}
	queued     bool
	queuedDone chan struct{}
	closed     bool

	changes chan struct{}
	stop    chan struct{}
	fetches int
}

// Subscribe starts tracking key. Cached data for key, of any age, seeds the
// first snapshot.
func Subscribe[T any](c *Coordinator, key string, fetch FetchFunc[T], opts Options) *Subscription[T] {
	opts = opts.withDefaults()
	s := &Subscription[T]{
		c:       c,
		id:      c.newID(key),
		key:     key,
		fetch:   fetch,
		opts:    opts,
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	if entry, ok := c.cache.Get(key); ok {
		if value, ok := entry.Value.(T); ok {
			s.state = Snapshot[T]{Data: value, HasData: true, FetchedAt: entry.FetchedAt}
		}
	}

	if !c.register(s) {
		s.closed = true
		close(s.stop)
		return s
	}
	if opts.Interval > 0 {
		go s.poll(opts.Interval)
	}
	if opts.Immediate {
		s.trigger(false)
	}
	return s
}

func (s *Subscription[T]) Key() string {
	return s.key
}

func (s *Subscription[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Changes signals after every state transition. Signals coalesce; read
// Snapshot for the current state.
func (s *Subscription[T]) Changes() <-chan struct{} {
	return s.changes
}

// Refetch bypasses the cache and waits for the fetch that serves it. When a
// fetch is already running, one more runs after it.
func (s *Subscription[T]) Refetch(ctx context.Context) (Snapshot[T], error) {
	done := s.trigger(true)
	select {
	case <-done:
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
	snap := s.Snapshot()
	return snap, snap.Err
}

// ClearCache drops the shared cache entry for this key. The snapshot keeps
// its data until the next fetch.
func (s *Subscription[T]) ClearCache() {
	s.c.cache.Delete(s.key)
}

// Unsubscribe stops polling and drops pending push refreshes. A fetch that
// is already running completes and still writes the cache.
func (s *Subscription[T]) Unsubscribe() {
	s.close()
	s.c.unregister(s)
}

// FetchCount reports how many fetches this subscription has started.
func (s *Subscription[T]) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *Subscription[T]) subscriptionID() string { return s.id }

func (s *Subscription[T]) resourceKey() string { return s.key }

func (s *Subscription[T]) pushed() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.c.debouncer.Arm(s.id, s.opts.Debounce, func() { s.trigger(true) })
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	s.c.debouncer.Cancel(s.id)
}

func (s *Subscription[T]) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.trigger(false)
		}
	}
}

// trigger requests a fetch and returns a channel closed once the request has
// been served. Non-forced requests are answered from a fresh cache entry or
// piggyback on a running fetch; forced ones queue behind it.
func (s *Subscription[T]) trigger(force bool) <-chan struct{} {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedChan()
	}
	if s.inFlight {
		defer s.mu.Unlock()
		if !force {
			return s.flightDone
		}
		if !s.queued {
			s.queued = true
			s.queuedDone = make(chan struct{})
		}
		return s.queuedDone
	}
	if !force {
		if entry, ok := s.c.cache.Fresh(s.key, s.opts.CacheTime); ok {
			if value, ok := entry.Value.(T); ok {
				s.state.Data = value
				s.state.HasData = true
				s.state.FetchedAt = entry.FetchedAt
				s.mu.Unlock()
				s.signal()
				return closedChan()
			}
		}
	}
	done := make(chan struct{})
	s.startLocked(done)
	s.mu.Unlock()
	s.signal()
	go s.run(done)
	return done
}

func (s *Subscription[T]) startLocked(done chan struct{}) {
	s.inFlight = true
	s.flightDone = done
	s.state.Loading = true
	s.fetches++
}

func (s *Subscription[T]) run(done chan struct{}) {
	for {
		value, err := s.fetch(s.c.ctx)

		s.mu.Lock()
		s.state.Loading = false
		if err != nil {
			s.state.Err = err
			s.c.logger.Debug().Err(err).Str("key", s.key).Msg("fetch failed, keeping last data")
		} else {
			entry := s.c.cache.Set(s.key, value)
			s.state = Snapshot[T]{Data: value, HasData: true, FetchedAt: entry.FetchedAt}
		}
		close(done)

		if !s.queued {
			s.inFlight = false
			s.mu.Unlock()
			s.signal()
			return
		}
		s.queued = false
		next := s.queuedDone
		s.queuedDone = nil
		if s.closed {
			s.inFlight = false
			close(next)
			s.mu.Unlock()
			s.signal()
			return
		}
		done = next
		s.startLocked(done)
		s.mu.Unlock()
		s.signal()
	}
}

func (s *Subscription[T]) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
