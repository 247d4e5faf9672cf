package raftpart

import "sync"

// peerRecord is one per Host: the leader-side replication cursor plus
// the membership flags the Peer Directory tracks.
type peerRecord struct {
	Addr                   HostAddr
	IsLearner              bool
	SendingSnapshot        bool
	FollowerCommittedLogID LogID
	FollowerLastLogID      LogID
	NextIndex              LogID
	MatchIndex             LogID
	LastSentTimeMs         int64
}

// PeerDirectory holds the mutable set of peers for a partition, each
// tracked as a Follower (voter) or Learner. It is safe for concurrent
// use: reads take the directory's read lock and return copies, writes
// take its write lock. Per §5, this lock is acquired only while
// holding partitionLock or neither — never while holding logsLock.
type PeerDirectory struct {
	mu      sync.RWMutex
	peers   map[HostAddr]*peerRecord
	quorum  int
	voters  int
}

// NewPeerDirectory returns an empty directory. Voters do not include
// self; the caller adds every other partition replica via Add.
func NewPeerDirectory() *PeerDirectory {
	return &PeerDirectory{peers: make(map[HostAddr]*peerRecord)}
}

// Add inserts addr as a Follower or Learner. It is idempotent:
// re-adding an existing peer with a different learner flag promotes or
// demotes it and recomputes quorum. Returns true if the membership set
// actually changed.
func (d *PeerDirectory) Add(addr HostAddr, learner bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.peers[addr]; ok {
		if p.IsLearner == learner {
			return false
		}
		p.IsLearner = learner
		d.recomputeQuorumLocked()
		return true
	}

	d.peers[addr] = &peerRecord{Addr: addr, IsLearner: learner}
	d.recomputeQuorumLocked()
	return true
}

// Remove deletes addr from the directory. Returns true if it was
// present.
func (d *PeerDirectory) Remove(addr HostAddr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.peers[addr]; !ok {
		return false
	}
	delete(d.peers, addr)
	d.recomputeQuorumLocked()
	return true
}

// Get returns a copy of one peer's record.
func (d *PeerDirectory) Get(addr HostAddr) (peerRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[addr]
	if !ok {
		return peerRecord{}, false
	}
	return *p, true
}

// Mutate applies f to the live record for addr, if present, under the
// directory's write lock. Used by the per-peer Host stub to update
// nextIndex/matchIndex after a reply.
func (d *PeerDirectory) Mutate(addr HostAddr, f func(*peerRecord)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[addr]
	if !ok {
		return false
	}
	f(p)
	return true
}

// SnapshotCopy returns a lock-free-to-use copy of every peer record,
// voters and learners alike.
func (d *PeerDirectory) SnapshotCopy() []peerRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]peerRecord, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	return out
}

// Followers returns every known peer address, voters and learners
// alike — intentionally, matching the original's followers() naming
// quirk (spec §9 Open Question): learners still need heartbeats and
// AppendEntries to stay caught up even though they never count toward
// quorum. Callers that need voters only (election, commit-quorum
// counting) must use Voters instead.
func (d *PeerDirectory) Followers() []HostAddr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HostAddr, 0, len(d.peers))
	for addr := range d.peers {
		out = append(out, addr)
	}
	return out
}

// Voters returns only the peers that count toward quorum.
func (d *PeerDirectory) Voters() []HostAddr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HostAddr, 0, d.voters)
	for addr, p := range d.peers {
		if !p.IsLearner {
			out = append(out, addr)
		}
	}
	return out
}

// Quorum returns the majority of voters (including self) needed to
// commit, recomputed whenever the voter set changes.
func (d *PeerDirectory) Quorum() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.quorum
}

// IsLearner reports whether addr is a known, non-voting peer.
func (d *PeerDirectory) IsLearner(addr HostAddr) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[addr]
	return ok && p.IsLearner
}

// Known reports whether addr is any known peer (voter or learner).
func (d *PeerDirectory) Known(addr HostAddr) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.peers[addr]
	return ok
}

func (d *PeerDirectory) recomputeQuorumLocked() {
	voters := 0
	for _, p := range d.peers {
		if !p.IsLearner {
			voters++
		}
	}
	d.voters = voters
	// +1 counts self, which is always a voter of its own partition.
	d.quorum = quorumOf(voters + 1)
}
