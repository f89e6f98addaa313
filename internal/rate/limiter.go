package rate

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

/*
Package rate provides per-client request limits over a rolling window:
  1) Window:      bounded-memory, in-process bucketed rolling window (LRU of keys)
  2) RedisWindow: fixed window counters shared across replicas

Keys whose window has fully elapsed are reclaimed, so memory tracks only
clients seen within the last window.
*/

var ErrUnavailable = errors.New("rate limiter store unavailable")

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Count      int // requests in the window, including this one
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// Limiter counts one request for key and reports whether it is within budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(count, limit int, retry time.Duration) Decision {
	d := Decision{Count: count, Limit: limit, Allowed: count <= limit}
	if d.Allowed {
		d.Remaining = limit - count
		return d
	}
	d.RetryAfter = retry
	return d
}

// ==========================
// Rolling window (bounded LRU)
// ==========================

const defaultBuckets = 15

type Window struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	width   time.Duration // window / len(buckets)
	nb      int
	cap     int
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	nowFunc func() time.Time
}

type windowEntry struct {
	key      string
	lastSlot int64    // slot index of the newest bucket
	buckets  []uint32 // len == nb; buckets[nb-1] is lastSlot
}

// NewWindow creates a 50k-capacity limiter allowing limit requests per window.
func NewWindow(limit int, window time.Duration) *Window {
	return NewWindowWithCapacity(limit, window, 50_000)
}

// NewWindowWithCapacity creates a bounded limiter. The window is tracked in
// 15 buckets, so requests age out with window/15 granularity.
func NewWindowWithCapacity(limit int, window time.Duration, capacity int) *Window {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if capacity <= 0 {
		capacity = 50_000
	}
	nb := defaultBuckets
	width := window / time.Duration(nb)
	if width <= 0 {
		nb, width = 1, window
	}
	return &Window{
		limit:   limit,
		window:  window,
		width:   width,
		nb:      nb,
		cap:     capacity,
		items:   make(map[string]*list.Element, capacity/2),
		lru:     list.New(),
		nowFunc: time.Now,
	}
}

func (w *Window) slot(t time.Time) int64 {
	return t.UnixNano() / int64(w.width)
}

// Allow records a request for key and returns the decision.
func (w *Window) Allow(_ context.Context, key string) (Decision, error) {
	now := w.nowFunc()
	cur := w.slot(now)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evictExpired(cur)

	if el, ok := w.items[key]; ok {
		en := el.Value.(*windowEntry)
		w.advance(en, cur)
		w.incrementTail(en)
		w.lru.MoveToFront(el)
		return decide(w.sum(en), w.limit, w.retryAfter(en, now)), nil
	}

	if w.lru.Len() >= w.cap {
		back := w.lru.Back()
		if back != nil {
			del := back.Value.(*windowEntry)
			delete(w.items, del.key)
			w.lru.Remove(back)
			log.Warn().Int("capacity", w.cap).Msg("rate limiter at capacity, evicted least recent client")
		}
	}
	en := &windowEntry{
		key:      key,
		lastSlot: cur,
		buckets:  make([]uint32, w.nb),
	}
	en.buckets[w.nb-1] = 1
	w.items[key] = w.lru.PushFront(en)
	return decide(1, w.limit, w.retryAfter(en, now)), nil
}

// Sweep drops every key whose window has fully elapsed and returns the number of live keys.
func (w *Window) Sweep() int {
	cur := w.slot(w.nowFunc())
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictExpired(cur)
	return w.lru.Len()
}

// Len reports the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lru.Len()
}

// evictExpired walks from the LRU tail; the tail is the least recently active key,
// so the walk stops at the first key still inside its window.
func (w *Window) evictExpired(cur int64) {
	for w.lru.Len() > 0 {
		back := w.lru.Back()
		en := back.Value.(*windowEntry)
		if cur-en.lastSlot < int64(w.nb) {
			return
		}
		delete(w.items, en.key)
		w.lru.Remove(back)
	}
}

// advance shifts buckets forward so the tail bucket is the current slot.
func (w *Window) advance(en *windowEntry, cur int64) {
	if cur <= en.lastSlot {
		return
	}
	diff := cur - en.lastSlot
	en.lastSlot = cur
	if diff >= int64(w.nb) {
		for i := range en.buckets {
			en.buckets[i] = 0
		}
		return
	}
	shift := int(diff)
	copy(en.buckets, en.buckets[shift:])
	for i := w.nb - shift; i < w.nb; i++ {
		en.buckets[i] = 0
	}
}

func (w *Window) incrementTail(en *windowEntry) {
	// Saturate to avoid overflow during extreme bursts
	if en.buckets[w.nb-1] < ^uint32(0) {
		en.buckets[w.nb-1]++
	}
}

func (w *Window) sum(en *windowEntry) int {
	total := 0
	for _, c := range en.buckets {
		total += int(c)
	}
	return total
}

// retryAfter is the time until the oldest non-empty bucket leaves the window.
func (w *Window) retryAfter(en *windowEntry, now time.Time) time.Duration {
	for i, c := range en.buckets {
		if c == 0 {
			continue
		}
		slot := en.lastSlot - int64(w.nb-1-i)
		expires := time.Unix(0, (slot+int64(w.nb))*int64(w.width))
		if d := expires.Sub(now); d > 0 {
			return d
		}
		return w.width
	}
	return 0
}
