// Package events delivers library and presence snapshots to connected clients
package events

import (
	"github.com/picksy/syncd/internal/models"
)

// Event commands
const (
	CommandSetLibrary = "SetLibrary"
	CommandPresence   = "Presence"
)

// Topics a client may subscribe to
const (
	TopicLibrary  = "library"
	TopicPresence = "presence"
)

// Emitter receives outward push events. Implementations must not block the caller
// for long; emissions happen on background goroutines.
type Emitter interface {
	EmitLibrary(photos []models.PhotoPayload)
	EmitPresence(graph models.PresenceGraph)
}

// LibraryEvent is the full library snapshot
type LibraryEvent struct {
	Command string                `json:"command"`
	Photos  []models.PhotoPayload `json:"photos"`
}

// NewLibraryEvent wraps photos, never encoding a null list
func NewLibraryEvent(photos []models.PhotoPayload) LibraryEvent {
	if photos == nil {
		photos = []models.PhotoPayload{}
	}
	return LibraryEvent{Command: CommandSetLibrary, Photos: photos}
}

// PresenceEvent is the current peer graph
type PresenceEvent struct {
	Command     string        `json:"command"`
	LocalPeer   models.Peer   `json:"local_peer"`
	RemotePeers []models.Peer `json:"remote_peers"`
}

// NewPresenceEvent flattens graph into an event
func NewPresenceEvent(graph models.PresenceGraph) PresenceEvent {
	remote := graph.RemotePeers
	if remote == nil {
		remote = []models.Peer{}
	}
	return PresenceEvent{Command: CommandPresence, LocalPeer: graph.LocalPeer, RemotePeers: remote}
}

// Multi fans events out to several emitters
type Multi []Emitter

func (m Multi) EmitLibrary(photos []models.PhotoPayload) {
	for _, e := range m {
		e.EmitLibrary(photos)
	}
}

func (m Multi) EmitPresence(graph models.PresenceGraph) {
	for _, e := range m {
		e.EmitPresence(graph)
	}
}
