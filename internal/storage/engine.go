// Package storage implements the in-memory data plane: a keyed dictionary
// of tagged values with per-key TTL expiry, backed by a custom
// separate-chaining hash table, a sorted-set type for ZSET commands, and a
// TTL scheduler driving proactive eviction from a background worker.
package storage

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rvlan/duskstore/internal/expiry"
	"github.com/rvlan/duskstore/internal/zset"
)

const defaultInitialBuckets = 16

// Engine is the Storage Engine: it owns the keyed dictionary, the TTL
// scheduler, and the background worker that drains expired keys. The
// dictionary's mutex is the outermost lock in the acquisition order
// (hash-table -> sorted-set -> scheduler); every method releases it
// before touching the scheduler or a sorted set's own lock, so no
// operation holds more than one of the three at a time.
type Engine struct {
	mu        sync.RWMutex
	table     *hashTable
	scheduler *expiry.Scheduler
	logger    *zap.Logger

	notify   chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Storage Engine and starts its background expiry worker.
// logger may be nil, in which case worker activity is not logged.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		table:     newHashTable(defaultInitialBuckets),
		scheduler: expiry.New(),
		logger:    logger,
		notify:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go e.runWorker()
	return e
}

// Shutdown stops the background worker and waits for it to exit. The
// Engine must not be used again afterward. Calling Shutdown more than
// once is safe.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		close(e.stop)
		<-e.done
	})
}

func (e *Engine) wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// runWorker sleeps until the Scheduler's earliest deadline (or a wake
// notification), then drains and deletes every key whose TTL has elapsed.
// It never holds the Scheduler lock across the wait: Peek returns a copy
// of the deadline so the timeout can be computed independently.
func (e *Engine) runWorker() {
	defer close(e.done)

	for {
		var timer *time.Timer
		if deadline, ok := e.scheduler.Peek(); ok {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
		}

		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}

		select {
		case <-e.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-e.notify:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}

		e.drainExpired()
	}
}

// Sweep forces an immediate expired-key purge, independent of the
// background worker's own deadline-driven wakeup. It exists for a
// periodic safety net above the worker: the worker should never miss a
// wakeup, but a sweep costs little and catches it if it ever does.
func (e *Engine) Sweep() {
	e.drainExpired()
}

func (e *Engine) drainExpired() {
	expired := e.scheduler.DrainExpired(time.Now())
	if len(expired) == 0 {
		return
	}

	// Between the scheduler pop and taking the table lock, a client may
	// have rewritten or re-expired the key, so only delete entries that
	// are still expired when observed under the lock.
	purged := 0
	e.mu.Lock()
	now := time.Now()
	for _, key := range expired {
		if ent, ok := e.table.get(key); ok && ent.expired(now) {
			e.table.delete(key)
			purged++
		}
	}
	e.mu.Unlock()

	if ce := e.logger.Check(zap.DebugLevel, "expired keys purged"); ce != nil {
		ce.Write(zap.Int("count", purged))
	}
}

// lookupLocked returns the live (non-expired) entry for key, lazily
// deleting an expired entry from the table. It deliberately leaves the
// stale scheduler registration alone — its deadline is already in the
// past, so the worker's next drain pops it, and the re-check in
// drainExpired makes the pop a no-op once the table entry is gone. That
// keeps this path free of scheduler calls, so the hash-table and
// scheduler locks are never held together. Callers must hold e.mu for
// writing.
func (e *Engine) lookupLocked(key string, now time.Time) (*entry, bool) {
	ent, ok := e.table.get(key)
	if !ok {
		return nil, false
	}
	if ent.expired(now) {
		e.table.delete(key)
		return nil, false
	}
	return ent, true
}

// Set unconditionally writes key=value, clearing any prior expiry.
func (e *Engine) Set(key string, value Value) {
	e.mu.Lock()
	e.table.put(&entry{key: key, value: value})
	e.mu.Unlock()

	e.scheduler.Remove(key)
}

// SetNX writes key=value only if key is absent (or expired), reporting
// whether it wrote.
func (e *Engine) SetNX(key string, value Value) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.lookupLocked(key, time.Now()); ok {
		return false
	}
	e.table.put(&entry{key: key, value: value})
	return true
}

// SetEX unconditionally writes key=value with an absolute expiry of
// now+ttl, registering it with the Scheduler and waking the worker.
func (e *Engine) SetEX(key string, value Value, ttl time.Duration) {
	expiresAt := time.Now().Add(ttl)

	e.mu.Lock()
	e.table.put(&entry{key: key, value: value, expiry: &expiresAt})
	e.mu.Unlock()

	e.scheduler.Upsert(key, expiresAt)
	e.wake()
}

// Get returns the string form of key's value if present and not expired.
// A key holding a sorted set has no string form and yields WrongType.
func (e *Engine) Get(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.lookupLocked(key, time.Now())
	if !ok {
		return "", false, nil
	}

	s, ok := ent.value.AsString()
	if !ok {
		return "", false, wrongTypeError()
	}
	return s, true, nil
}

// Del removes key, reporting whether it existed.
func (e *Engine) Del(key string) bool {
	e.mu.Lock()
	// Lazily expire first so a stale key is reported as not-existing
	// rather than "deleted".
	_, ok := e.lookupLocked(key, time.Now())
	if ok {
		e.table.delete(key)
	}
	e.mu.Unlock()

	if ok {
		e.scheduler.Remove(key)
	}
	return ok
}

// Exists reports whether key is present and not expired.
func (e *Engine) Exists(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.lookupLocked(key, time.Now())
	return ok
}

// Expire sets key's absolute expiry to now+ttl, registering it with the
// Scheduler and waking the worker. ttl == 0 means "expire immediately" —
// the next worker pass deletes the key. Returns false if key is absent.
// Expire does not interpret negative durations; rejecting those is the
// caller's responsibility.
func (e *Engine) Expire(key string, ttl time.Duration) bool {
	e.mu.Lock()
	ent, ok := e.lookupLocked(key, time.Now())
	if !ok {
		e.mu.Unlock()
		return false
	}
	expiresAt := time.Now().Add(ttl)
	ent.expiry = &expiresAt
	e.mu.Unlock()

	e.scheduler.Upsert(key, expiresAt)
	e.wake()
	return true
}

// Persist removes key's expiry, making it eternal, and reports whether a
// TTL actually existed to clear.
func (e *Engine) Persist(key string) bool {
	e.mu.Lock()
	ent, ok := e.lookupLocked(key, time.Now())
	cleared := ok && ent.expiry != nil
	if cleared {
		ent.expiry = nil
	}
	e.mu.Unlock()

	if cleared {
		e.scheduler.Remove(key)
	}
	return cleared
}

// TTL reports a key's remaining lifetime: -2 if absent, -1 if present
// without an expiry, else the remaining whole seconds (truncating
// division).
func (e *Engine) TTL(key string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	ent, ok := e.lookupLocked(key, now)
	if !ok {
		return -2
	}
	if ent.expiry == nil {
		return -1
	}
	remaining := ent.expiry.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return int64(remaining / time.Second)
}

// DBSize returns the number of keys in the dictionary. Expired keys are not
// swept by DBSize itself; it reports the dictionary's current count,
// which may include not-yet-purged expired entries for an instant before
// the worker or a lazy lookup catches them (mirrors the Engine contract:
// callers observing a key through Get/Exists never see a stale value).
func (e *Engine) DBSize() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(e.table.len())
}

// FlushDB clears every key and cancels every scheduled expiry.
func (e *Engine) FlushDB() {
	e.mu.Lock()
	e.table.clear()
	e.mu.Unlock()
	e.scheduler.Clear()
}

// getZSet resolves key to its sorted set and releases the dictionary lock
// before returning, so no caller ever holds the hash-table lock while
// operating on a sorted set's own lock (hash-table, then sorted-set, is
// the acquisition order; the two are never held at once). If create is
// true, a missing key gets a fresh empty sorted set. A key holding a
// non-sorted-set value is always a WrongType error, whether or not create
// is set.
func (e *Engine) getZSet(key string, create bool) (*zset.Set, error) {
	e.mu.Lock()

	ent, ok := e.lookupLocked(key, time.Now())
	if !ok {
		if !create {
			e.mu.Unlock()
			return nil, nil
		}
		z := zset.New()
		e.table.put(&entry{key: key, value: sortedSetValue(z)})
		e.mu.Unlock()
		return z, nil
	}

	z, ok := ent.value.AsSortedSet()
	e.mu.Unlock()
	if !ok {
		return nil, wrongTypeError()
	}
	return z, nil
}

// ZAddPair is one (member, score) to add in a ZAdd call.
type ZAddPair struct {
	Member string
	Score  float64
}

// ZAdd adds or updates members in key's sorted set, auto-creating it on
// first use, and returns how many members were newly added (matching the
// reference ZADD return value: updates to an existing member's score do
// not count).
func (e *Engine) ZAdd(key string, pairs []ZAddPair) (int64, error) {
	z, err := e.getZSet(key, true)
	if err != nil {
		return 0, err
	}

	var added int64
	for _, p := range pairs {
		res, err := z.Add(p.Member, p.Score)
		if err != nil {
			return added, syntaxError(err.Error())
		}
		if res == zset.Added {
			added++
		}
	}
	return added, nil
}

// ZRem removes members from key's sorted set, returning how many existed.
func (e *Engine) ZRem(key string, members []string) (int64, error) {
	z, err := e.getZSet(key, false)
	if err != nil {
		return 0, err
	}
	if z == nil {
		return 0, nil
	}

	var removed int64
	for _, m := range members {
		if z.Remove(m) {
			removed++
		}
	}
	return removed, nil
}

// ZScore returns member's score in key's sorted set.
func (e *Engine) ZScore(key, member string) (float64, bool, error) {
	z, err := e.getZSet(key, false)
	if err != nil {
		return 0, false, err
	}
	if z == nil {
		return 0, false, nil
	}
	score, ok := z.Score(member)
	return score, ok, nil
}

// ZRank returns member's zero-based rank in key's sorted set.
func (e *Engine) ZRank(key, member string) (int, bool, error) {
	z, err := e.getZSet(key, false)
	if err != nil {
		return 0, false, err
	}
	if z == nil {
		return 0, false, nil
	}
	rank, ok := z.Rank(member)
	return rank, ok, nil
}

// ZCard returns the number of members in key's sorted set.
func (e *Engine) ZCard(key string) (int64, error) {
	z, err := e.getZSet(key, false)
	if err != nil {
		return 0, err
	}
	if z == nil {
		return 0, nil
	}
	return int64(z.Size()), nil
}

// ZRange returns members of key's sorted set with rank in [start, stop].
func (e *Engine) ZRange(key string, start, stop int) ([]zset.Pair, error) {
	z, err := e.getZSet(key, false)
	if err != nil {
		return nil, err
	}
	if z == nil {
		return nil, nil
	}
	return z.RangeByRank(start, stop), nil
}

// ZRangeByScore returns members of key's sorted set with score in
// [min, max].
func (e *Engine) ZRangeByScore(key string, min, max float64) ([]zset.Pair, error) {
	z, err := e.getZSet(key, false)
	if err != nil {
		return nil, err
	}
	if z == nil {
		return nil, nil
	}
	return z.RangeByScore(min, max), nil
}
