package server

import (
	"log"
	"sync"
	"time"
)

// TimerStore owns the ephemeral timers of the realtime core: typing-indicator
// auto-expiry timers keyed by conversation key, and recurring heartbeat
// probes keyed by connection id. Cancellation handles are stored at creation
// time; nothing relies on ambient scheduler state.
type TimerStore struct {
	mu         sync.Mutex
	typing     map[string]*time.Timer
	heartbeats map[string]chan struct{}
	log        *log.Logger
}

func NewTimerStore(logger *log.Logger) *TimerStore {
	return &TimerStore{
		typing:     make(map[string]*time.Timer),
		heartbeats: make(map[string]chan struct{}),
		log:        logger,
	}
}

// StartTyping arms (or re-arms) the typing expiry timer for a conversation.
// At most one timer is live per key; a new start cancels and replaces the
// previous one. On expiry the entry clears itself before fn runs, and a
// panicking fn never leaves a dangling entry.
func (ts *TimerStore) StartTyping(key string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.typing[key]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		ts.mu.Lock()
		current, ok := ts.typing[key]
		if ok && current == timer {
			delete(ts.typing, key)
		}
		ts.mu.Unlock()
		if !ok || current != timer {
			// replaced between firing and running
			return
		}

		defer func() {
			if r := recover(); r != nil {
				ts.log.Printf("typing timer for %q panicked: %v", key, r)
			}
		}()
		fn()
	})

	ts.typing[key] = timer
}

// CancelTyping stops the typing timer for a conversation if one is live,
// reporting whether there was one.
func (ts *TimerStore) CancelTyping(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, ok := ts.typing[key]
	if !ok {
		return false
	}

	t.Stop()
	delete(ts.typing, key)
	return true
}

func (ts *TimerStore) TypingCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.typing)
}

// StartHeartbeat runs probe every interval until it returns false or the
// heartbeat is cancelled. A probe that finds its connection dead returns
// false and the entry removes itself from the store.
func (ts *TimerStore) StartHeartbeat(connId string, interval time.Duration, probe func() bool) {
	ts.mu.Lock()
	if _, ok := ts.heartbeats[connId]; ok {
		ts.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	ts.heartbeats[connId] = stop
	ts.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !ts.runProbe(connId, probe) {
					ts.CancelHeartbeat(connId)
					return
				}
			}
		}
	}()
}

func (ts *TimerStore) runProbe(connId string, probe func() bool) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			ts.log.Printf("heartbeat probe for %q panicked: %v", connId, r)
			alive = false
		}
	}()
	return probe()
}

// CancelHeartbeat stops the probe for a connection. Safe to call more than
// once; teardown and a self-cancelling probe may both reach here.
func (ts *TimerStore) CancelHeartbeat(connId string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	stop, ok := ts.heartbeats[connId]
	if !ok {
		return
	}

	close(stop)
	delete(ts.heartbeats, connId)
}

func (ts *TimerStore) HeartbeatCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.heartbeats)
}

// StopAll cancels every live timer; used on shutdown.
func (ts *TimerStore) StopAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for key, t := range ts.typing {
		t.Stop()
		delete(ts.typing, key)
	}
	for id, stop := range ts.heartbeats {
		close(stop)
		delete(ts.heartbeats, id)
	}
}
