package sync

import (
	"time"

	"github.com/dl-alexandre/gosync/internal/config"
)

// State is the orchestrator's position in its cycle
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateValidating
	StateSyncing
	StateCoolDown
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateValidating:
		return "validating"
	case StateSyncing:
		return "syncing"
	case StateCoolDown:
		return "cool-down"
	case StateShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the engine for status displays
type Status struct {
	Account      string           `json:"account"`
	MirrorDir    string           `json:"mirrorDir"`
	State        string           `json:"state"`
	SyncEnabled  bool             `json:"syncEnabled"`
	Paused       bool             `json:"paused"`
	PauseReason  string           `json:"pauseReason,omitempty"`
	Online       bool             `json:"online"`
	LastSync     time.Time        `json:"lastSync,omitempty"`
	LastError    string           `json:"lastError,omitempty"`
	HasToken     bool             `json:"hasChangeToken"`
	CachedNodes  int              `json:"cachedNodes"`
	PendingLocal int              `json:"pendingLocalEvents"`
	Selection    config.Selection `json:"syncSelection"`
}
