package app

import (
	"sync"
	"time"
)

// SessionTimer runs one cancelable countdown per game code. Ticks happen on
// their own goroutine; callbacks must do their own locking.
type SessionTimer struct {
	tick time.Duration

	mu      sync.Mutex
	seq     uint64
	entries map[string]*timerEntry
}

type timerEntry struct {
	id   uint64
	stop chan struct{}
}

// NewSessionTimer builds a timer ticking every tick (one second in production).
func NewSessionTimer(tick time.Duration) *SessionTimer {
	if tick <= 0 {
		tick = time.Second
	}
	return &SessionTimer{
		tick:    tick,
		entries: make(map[string]*timerEntry),
	}
}

func (t *SessionTimer) Countdown(key string, seconds int, tail time.Duration, onTick func(remaining int), onDone func()) {
	entry := t.replace(key)
	go func() {
		ticker := time.NewTicker(t.tick)
		defer ticker.Stop()

		for remaining := seconds; remaining > 0; {
			select {
			case <-entry.stop:
				return
			case <-ticker.C:
			}
			remaining--
			if entry.stopped() {
				return
			}
			onTick(remaining)
		}
		if !t.sleep(entry, tail) {
			return
		}
		if t.finish(key, entry) {
			onDone()
		}
	}()
}

func (t *SessionTimer) After(key string, d time.Duration, fn func()) {
	entry := t.replace(key)
	go func() {
		if !t.sleep(entry, d) {
			return
		}
		if t.finish(key, entry) {
			fn()
		}
	}()
}

// Cancel stops and forgets the timer for key, if any.
func (t *SessionTimer) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[key]; ok {
		close(entry.stop)
		delete(t.entries, key)
	}
}

// CancelAll stops every running timer; used on shutdown.
func (t *SessionTimer) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.entries {
		close(entry.stop)
		delete(t.entries, key)
	}
}

// Keys lists the codes that currently own a timer.
func (t *SessionTimer) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for key := range t.entries {
		keys = append(keys, key)
	}
	return keys
}

// Active reports whether key has a pending timer.
func (t *SessionTimer) Active(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

func (t *SessionTimer) replace(key string) *timerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.entries[key]; ok {
		close(old.stop)
	}
	t.seq++
	entry := &timerEntry{id: t.seq, stop: make(chan struct{})}
	t.entries[key] = entry
	return entry
}

// finish removes entry if it is still the current one for key and reports
// whether the caller should run its final callback.
func (t *SessionTimer) finish(key string, entry *timerEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.entries[key]
	if !ok || current.id != entry.id {
		return false
	}
	delete(t.entries, key)
	return true
}

func (t *SessionTimer) sleep(entry *timerEntry, d time.Duration) bool {
	if d <= 0 {
		return !entry.stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-entry.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (e *timerEntry) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}
