package models

// Peer is one device in the presence graph
type Peer struct {
	PeerKey    string         `json:"peer_key"`
	DeviceName string         `json:"device_name"`
	Metadata   map[string]any `json:"metadata"`
}

// PresenceGraph is a snapshot of the local peer and the peers it can reach
type PresenceGraph struct {
	LocalPeer   Peer   `json:"local_peer"`
	RemotePeers []Peer `json:"remote_peers"`
}

// Clone returns a copy of the graph with its own peer slice
func (g PresenceGraph) Clone() PresenceGraph {
	remote := make([]Peer, len(g.RemotePeers))
	copy(remote, g.RemotePeers)
	return PresenceGraph{LocalPeer: g.LocalPeer, RemotePeers: remote}
}
