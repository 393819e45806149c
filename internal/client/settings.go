package client

import (
	"context"
	"sync"
)

// SettingEntry is the cached view of one boolean setting. ServerValue is the
// last server-confirmed value; PendingValue is present exactly while a
// mutation is in flight. Version increases with every mutation attempt and
// gates reconciliation: results are discarded by version, not by completion
// order.
type SettingEntry struct {
	Key          string
	ServerValue  bool
	PendingValue *bool
	Version      uint64
}

// EffectiveValue is what a UI should display: the predicted value while a
// mutation is pending, the confirmed value otherwise.
func (e SettingEntry) EffectiveValue() bool {
	if e.PendingValue != nil {
		return *e.PendingValue
	}
	return e.ServerValue
}

// SettingsCache holds the last-known server-confirmed state per setting plus
// per-key pending markers. Entries are mutated only through the coordinator;
// readers get copies.
type SettingsCache struct {
	mu      sync.Mutex
	entries map[string]SettingEntry
	subs    map[int]chan SettingEntry
	nextSub int
}

func NewSettingsCache() *SettingsCache {
	return &SettingsCache{
		entries: make(map[string]SettingEntry),
		subs:    make(map[int]chan SettingEntry),
	}
}

// Get returns a snapshot of the entry for key.
func (c *SettingsCache) Get(key string) (SettingEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Subscribe delivers entry snapshots after every cache change. Intermediate
// snapshots may be dropped for a slow subscriber; the latest state is always
// eventually delivered.
func (c *SettingsCache) Subscribe() (<-chan SettingEntry, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan SettingEntry, 16)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s)
		}
	}
}

func (c *SettingsCache) publishLocked(e SettingEntry) {
	for _, ch := range c.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// begin records a new mutation attempt: it bumps the version, marks the
// predicted value as pending, and returns the new version plus the entry as
// it stood before the speculative write.
func (c *SettingsCache) begin(key string, desired bool) (version uint64, previous SettingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = SettingEntry{Key: key}
	}
	previous = e
	e.Version++
	v := desired
	e.PendingValue = &v
	c.entries[key] = e
	c.publishLocked(e)
	return e.Version, previous
}

// resolve applies a successful mutation result. It reports false when a newer
// mutation for key has been issued since version, in which case the result is
// discarded untouched.
func (c *SettingsCache) resolve(key string, version uint64, serverValue bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.Version != version {
		return false
	}
	e.ServerValue = serverValue
	e.PendingValue = nil
	c.entries[key] = e
	c.publishLocked(e)
	return true
}

// rollback restores the pre-mutation server value after a failure, unless the
// mutation has been superseded.
func (c *SettingsCache) rollback(key string, version uint64, previous SettingEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.Version != version {
		return false
	}
	e.ServerValue = previous.ServerValue
	e.PendingValue = nil
	c.entries[key] = e
	c.publishLocked(e)
	return true
}

// Confirm overwrites the server-confirmed value unconditionally. Used by the
// background authoritative refresh; a pending marker for an in-flight
// mutation is left untouched.
func (c *SettingsCache) Confirm(key string, serverValue bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = SettingEntry{Key: key}
	}
	e.ServerValue = serverValue
	c.entries[key] = e
	c.publishLocked(e)
}

// BoolSetting binds a cache key to its remote operations. Enable and Disable
// are distinct idempotent calls; Refresh reads the authoritative value.
type BoolSetting struct {
	Enable  func(ctx context.Context) (SettingResult, error)
	Disable func(ctx context.Context) (SettingResult, error)
	Refresh func(ctx context.Context) (bool, error)
}

// Coordinator executes boolean-setting changes optimistically: the cache is
// updated speculatively before the remote call and reconciled afterwards.
type Coordinator struct {
	cache *SettingsCache

	mu       sync.Mutex
	settings map[string]BoolSetting
}

func NewCoordinator(cache *SettingsCache) *Coordinator {
	return &Coordinator{
		cache:    cache,
		settings: make(map[string]BoolSetting),
	}
}

// Register binds key to its remote operations.
func (co *Coordinator) Register(key string, ops BoolSetting) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.settings[key] = ops
}

// Cache exposes the coordinator's cache for readers and subscribers.
func (co *Coordinator) Cache() *SettingsCache { return co.cache }

// SetBool changes a boolean setting. The pending value is visible to cache
// readers before the remote call resolves. Two rapid calls for the same key
// leave the cache reflecting the last-issued call: a result belonging to a
// superseded version is discarded silently. Regardless of outcome, a
// background refresh overwrites the cache with the server's confirmed truth.
func (co *Coordinator) SetBool(ctx context.Context, key string, desired bool) error {
	co.mu.Lock()
	ops, ok := co.settings[key]
	co.mu.Unlock()
	if !ok {
		return &ServerError{Message: "unknown setting: " + key}
	}

	version, previous := co.cache.begin(key, desired)

	op := ops.Disable
	if desired {
		op = ops.Enable
	}
	result, err := op(ctx)

	if err != nil {
		co.cache.rollback(key, version, previous)
		co.refresh(key, ops)
		return err
	}

	co.cache.resolve(key, version, result.Enabled)
	co.refresh(key, ops)
	return nil
}

// refresh fetches the authoritative value in the background and applies it
// unconditionally once it arrives.
func (co *Coordinator) refresh(key string, ops BoolSetting) {
	if ops.Refresh == nil {
		return
	}
	go func() {
		value, err := ops.Refresh(context.Background())
		if err != nil {
			return
		}
		co.cache.Confirm(key, value)
	}()
}
