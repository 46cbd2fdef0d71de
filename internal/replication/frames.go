// Package replication keeps the local store in sync with the relay over a
// websocket link
package replication

import (
	"github.com/picksy/syncd/internal/models"
)

// Frame types exchanged with the relay
const (
	FrameHello    = "hello"
	FrameCommit   = "commit"
	FrameAck      = "ack"
	FramePresence = "presence"
	FrameChange   = "change"
	FrameRemove   = "remove"
)

// Frame is one JSON message on the link. Fields are set per type:
//
//	hello     peer_key, device_name, metadata, subscriptions, synced_up_to
//	commit    collection, doc, commit_id
//	remove    collection, id, commit_id (outbound) or collection, id (inbound)
//	ack       synced_up_to
//	presence  peers
//	change    collection, doc
type Frame struct {
	Type          string         `json:"type"`
	PeerKey       string         `json:"peer_key,omitempty"`
	DeviceName    string         `json:"device_name,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Subscriptions []string       `json:"subscriptions,omitempty"`
	SyncedUpTo    *uint64        `json:"synced_up_to,omitempty"`
	Collection    string         `json:"collection,omitempty"`
	Doc           map[string]any `json:"doc,omitempty"`
	ID            string         `json:"id,omitempty"`
	CommitID      uint64         `json:"commit_id,omitempty"`
	Peers         []models.Peer  `json:"peers,omitempty"`
}
