// Package events carries typed progress notifications from the sync engine to observers.
package events

import (
	"fmt"
	stdsync "sync"
)

// Event is one notification. The concrete types below are the only implementations.
type Event interface {
	Kind() string
}

type SyncStarted struct {
	Full bool
}

type SyncProgress struct {
	Message string
}

type SyncDone struct {
	Success bool
	Err     error
}

// SyncTimer reports the remaining cool down before the next cycle
type SyncTimer struct {
	SecondsLeft int
}

// SyncPaused is emitted when sync stops; Reason is empty for a user pause
type SyncPaused struct {
	Reason string
}

type UsageStarted struct{}

type UsageProgress struct {
	FilesScanned int64
}

type UsageDone struct {
	Success bool
}

type ConnectivityChanged struct {
	Up bool
}

// InvalidSyncFolder is emitted when a selected folder can no longer be resolved remotely
type InvalidSyncFolder struct {
	Path string
}

func (SyncStarted) Kind() string         { return "sync-started" }
func (SyncProgress) Kind() string        { return "sync-progress" }
func (SyncDone) Kind() string            { return "sync-done" }
func (SyncTimer) Kind() string           { return "sync-paused-timer" }
func (SyncPaused) Kind() string          { return "sync-paused" }
func (UsageStarted) Kind() string        { return "usage-calc-started" }
func (UsageProgress) Kind() string       { return "usage-calc-progress" }
func (UsageDone) Kind() string           { return "usage-calc-done" }
func (ConnectivityChanged) Kind() string { return "connectivity-changed" }
func (InvalidSyncFolder) Kind() string   { return "invalid-sync-folder" }

// Describe renders an event as a single human readable line
func Describe(e Event) string {
	switch ev := e.(type) {
	case SyncStarted:
		if ev.Full {
			return "Full sync started"
		}
		return "Sync started"
	case SyncProgress:
		return ev.Message
	case SyncDone:
		if ev.Success {
			return "Sync completed"
		}
		if ev.Err != nil {
			return fmt.Sprintf("Sync failed: %v", ev.Err)
		}
		return "Sync stopped"
	case SyncTimer:
		return fmt.Sprintf("Next sync in %ds", ev.SecondsLeft)
	case SyncPaused:
		if ev.Reason != "" {
			return "Sync paused: " + ev.Reason
		}
		return "Sync paused"
	case UsageStarted:
		return "Calculating drive usage"
	case UsageProgress:
		return fmt.Sprintf("Scanned %d files", ev.FilesScanned)
	case UsageDone:
		if ev.Success {
			return "Drive usage updated"
		}
		return "Drive usage calculation failed"
	case ConnectivityChanged:
		if ev.Up {
			return "Connection restored"
		}
		return "Connection lost, waiting for the network"
	case InvalidSyncFolder:
		return fmt.Sprintf("Sync folder %s is no longer available; sync paused", ev.Path)
	default:
		return e.Kind()
	}
}

// Observer receives events. Notify must not block for long; the engine calls
// it while holding its sync lock.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Bus fans events out to its subscribers
type Bus struct {
	mu        stdsync.RWMutex
	observers []Observer
}

func NewBus(observers ...Observer) *Bus {
	return &Bus{observers: observers}
}

func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

func (b *Bus) Notify(e Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()
	for _, o := range observers {
		o.Notify(e)
	}
}

// ChannelObserver forwards events to a buffered channel, dropping them when the consumer falls behind
type ChannelObserver struct {
	C     chan Event
	mu    stdsync.Mutex
	drops int
}

func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{C: make(chan Event, buffer)}
}

func (c *ChannelObserver) Notify(e Event) {
	select {
	case c.C <- e:
	default:
		c.mu.Lock()
		c.drops++
		c.mu.Unlock()
	}
}

// Dropped returns how many events were discarded
func (c *ChannelObserver) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drops
}
