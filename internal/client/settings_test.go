package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeOps is a controllable remote settings endpoint.
type fakeOps struct {
	mu         sync.Mutex
	value      bool
	enableErr  error
	disableErr error
	refreshVal *bool         // overrides value when set
	gate       chan struct{} // when non-nil, operations block until it closes
}

func (f *fakeOps) setting() BoolSetting {
	return BoolSetting{
		Enable:  func(ctx context.Context) (SettingResult, error) { return f.apply(true, f.enableErr) },
		Disable: func(ctx context.Context) (SettingResult, error) { return f.apply(false, f.disableErr) },
		Refresh: func(ctx context.Context) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.refreshVal != nil {
				return *f.refreshVal, nil
			}
			return f.value, nil
		},
	}
}

func (f *fakeOps) apply(desired bool, fail error) (SettingResult, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail != nil {
		return SettingResult{}, fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.value != desired
	f.value = desired
	return SettingResult{Enabled: desired, Changed: changed}, nil
}

func waitForEntry(t *testing.T, cache *SettingsCache, key string, ok func(SettingEntry) bool) SettingEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e, found := cache.Get(key); found && ok(e) {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	e, _ := cache.Get(key)
	t.Fatalf("cache never reached expected state; last entry: %+v", e)
	return SettingEntry{}
}

func TestSetBoolSuccess(t *testing.T) {
	ops := &fakeOps{}
	co := NewCoordinator(NewSettingsCache())
	co.Register("debug", ops.setting())

	if err := co.SetBool(context.Background(), "debug", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}

	e, ok := co.Cache().Get("debug")
	if !ok {
		t.Fatal("no cache entry after SetBool")
	}
	if e.PendingValue != nil {
		t.Errorf("pendingValue still set after resolution: %v", *e.PendingValue)
	}
	if !e.ServerValue {
		t.Error("serverValue = false, want true")
	}
	if e.Version != 1 {
		t.Errorf("version = %d, want 1", e.Version)
	}
}

func TestPendingVisibleBeforeRemoteResolves(t *testing.T) {
	gate := make(chan struct{})
	ops := &fakeOps{gate: gate}
	co := NewCoordinator(NewSettingsCache())
	co.Register("debug", ops.setting())

	done := make(chan error, 1)
	go func() { done <- co.SetBool(context.Background(), "debug", true) }()

	e := waitForEntry(t, co.Cache(), "debug", func(e SettingEntry) bool { return e.PendingValue != nil })
	if !*e.PendingValue {
		t.Error("pendingValue = false, want true")
	}
	if !e.EffectiveValue() {
		t.Error("EffectiveValue should report the predicted value while pending")
	}
	if e.ServerValue {
		t.Error("serverValue mutated before the remote call resolved")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("SetBool: %v", err)
	}
}

func TestSetBoolRollbackOnFailure(t *testing.T) {
	ops := &fakeOps{enableErr: &NetworkError{Err: errors.New("connection refused")}}
	cache := NewSettingsCache()
	cache.Confirm("debug", false)
	co := NewCoordinator(cache)
	co.Register("debug", ops.setting())

	err := co.SetBool(context.Background(), "debug", true)
	if err == nil {
		t.Fatal("SetBool succeeded, want network error")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %T, want *NetworkError", err)
	}

	e := waitForEntry(t, cache, "debug", func(e SettingEntry) bool { return e.PendingValue == nil })
	if e.ServerValue {
		t.Error("serverValue not rolled back to false")
	}
}

func TestLastIssuedWins(t *testing.T) {
	// First call (enable) blocks until the second (disable) fully resolves.
	gate := make(chan struct{})

	cache := NewSettingsCache()
	co := NewCoordinator(cache)
	enableStarted := make(chan struct{})
	co.Register("debug", BoolSetting{
		Enable: func(ctx context.Context) (SettingResult, error) {
			close(enableStarted)
			<-gate
			return SettingResult{Enabled: true, Changed: true}, nil
		},
		Disable: func(ctx context.Context) (SettingResult, error) {
			return SettingResult{Enabled: false, Changed: true}, nil
		},
		Refresh: func(ctx context.Context) (bool, error) {
			return false, nil
		},
	})

	firstDone := make(chan error, 1)
	go func() { firstDone <- co.SetBool(context.Background(), "debug", true) }()
	<-enableStarted

	if err := co.SetBool(context.Background(), "debug", false); err != nil {
		t.Fatalf("second SetBool: %v", err)
	}

	// Let the first, superseded call finish after the second.
	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first SetBool: %v", err)
	}

	e := waitForEntry(t, cache, "debug", func(e SettingEntry) bool { return e.PendingValue == nil })
	if e.ServerValue {
		t.Error("cache reflects the earlier call; last-issued must win")
	}
}

func TestStaleResolveDiscardedByVersion(t *testing.T) {
	cache := NewSettingsCache()

	v1, _ := cache.begin("debug", true)
	v2, _ := cache.begin("debug", false)

	if cache.resolve("debug", v1, true) {
		t.Error("resolve accepted a superseded version")
	}
	e, _ := cache.Get("debug")
	if e.PendingValue == nil || *e.PendingValue {
		t.Error("stale resolve disturbed the newer pending mutation")
	}

	if !cache.resolve("debug", v2, false) {
		t.Error("resolve rejected the current version")
	}
	e, _ = cache.Get("debug")
	if e.PendingValue != nil || e.ServerValue {
		t.Errorf("unexpected entry after current resolve: %+v", e)
	}
}

func TestStaleRollbackDiscardedByVersion(t *testing.T) {
	cache := NewSettingsCache()
	cache.Confirm("debug", true)

	v1, prev1 := cache.begin("debug", false)
	_, _ = cache.begin("debug", true)

	if cache.rollback("debug", v1, prev1) {
		t.Error("rollback accepted a superseded version")
	}
	e, _ := cache.Get("debug")
	if e.PendingValue == nil {
		t.Error("stale rollback cleared the newer pending marker")
	}
}

func TestBackgroundRefreshOverwrites(t *testing.T) {
	refreshed := true
	ops := &fakeOps{refreshVal: &refreshed}
	co := NewCoordinator(NewSettingsCache())
	co.Register("debug", ops.setting())

	// The remote disable succeeds but the authoritative read disagrees
	// transiently; the refresh has the last word.
	if err := co.SetBool(context.Background(), "debug", false); err != nil {
		t.Fatalf("SetBool: %v", err)
	}

	waitForEntry(t, co.Cache(), "debug", func(e SettingEntry) bool {
		return e.PendingValue == nil && e.ServerValue
	})
}

func TestConfirmKeepsPendingMarker(t *testing.T) {
	cache := NewSettingsCache()
	cache.begin("debug", true)

	cache.Confirm("debug", false)

	e, _ := cache.Get("debug")
	if e.PendingValue == nil {
		t.Error("Confirm cleared the pending marker of an in-flight mutation")
	}
	if e.ServerValue {
		t.Error("Confirm did not overwrite serverValue")
	}
}

func TestUnknownSettingKey(t *testing.T) {
	co := NewCoordinator(NewSettingsCache())
	err := co.SetBool(context.Background(), "nope", true)
	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("error = %T, want *ServerError", err)
	}
}

func TestCacheSubscribeDeliversSnapshots(t *testing.T) {
	cache := NewSettingsCache()
	updates, cancel := cache.Subscribe()
	defer cancel()

	cache.Confirm("debug", true)

	select {
	case e := <-updates:
		if e.Key != "debug" || !e.ServerValue {
			t.Errorf("unexpected snapshot: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}
