package events

import (
	"errors"
	"strings"
	"testing"
)

func TestBus_FanOut(t *testing.T) {
	var first, second []string
	bus := NewBus(ObserverFunc(func(e Event) { first = append(first, e.Kind()) }))
	bus.Subscribe(ObserverFunc(func(e Event) { second = append(second, e.Kind()) }))

	bus.Notify(SyncStarted{})
	bus.Notify(SyncDone{Success: true})

	for _, got := range [][]string{first, second} {
		if len(got) != 2 || got[0] != "sync-started" || got[1] != "sync-done" {
			t.Errorf("Expected [sync-started sync-done], got %v", got)
		}
	}
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	obs := NewChannelObserver(1)
	obs.Notify(SyncProgress{Message: "a"})
	obs.Notify(SyncProgress{Message: "b"})

	if obs.Dropped() != 1 {
		t.Errorf("Expected 1 dropped event, got %d", obs.Dropped())
	}
	if e := <-obs.C; e.(SyncProgress).Message != "a" {
		t.Errorf("Expected first event to be kept, got %v", e)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{SyncStarted{Full: true}, "Full sync started"},
		{SyncDone{Err: errors.New("boom")}, "Sync failed: boom"},
		{SyncTimer{SecondsLeft: 30}, "Next sync in 30s"},
		{ConnectivityChanged{Up: false}, "Connection lost"},
		{InvalidSyncFolder{Path: "docs"}, "docs"},
		{UsageProgress{FilesScanned: 12}, "12 files"},
	}
	for _, tt := range tests {
		t.Run(tt.event.Kind(), func(t *testing.T) {
			if got := Describe(tt.event); !strings.Contains(got, tt.want) {
				t.Errorf("Expected description containing %q, got %q", tt.want, got)
			}
		})
	}
}
