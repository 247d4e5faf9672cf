package raftpart

import "encoding/json"

// MembershipOp is the kind of cluster-shape change a COMMAND entry
// carries.
type MembershipOp int

const (
	MembershipAddPeer MembershipOp = iota
	MembershipRemovePeer
	MembershipPromoteLearner
	MembershipTransferLeader
)

// MembershipCommand is the core-understood payload of a COMMAND log
// entry. Every other LogType's payload stays opaque to the core; this
// one is the single exception, decoded by the Raft Partition itself
// so the Peer Directory and quorum stay correct without relying on
// the Host to report back cluster-shape changes.
//
// Encoded with encoding/json: no ecosystem serialization library
// appears anywhere in the reference pack for small internal command
// structs like this one (see DESIGN.md), and the payload never
// crosses a boundary that cares about compactness the way the log
// stream itself does.
type MembershipCommand struct {
	Op      MembershipOp
	Peer    HostAddr
	Learner bool
}

func EncodeMembershipCommand(cmd MembershipCommand) []byte {
	b, _ := json.Marshal(cmd)
	return b
}

func DecodeMembershipCommand(b []byte) (MembershipCommand, error) {
	var cmd MembershipCommand
	err := json.Unmarshal(b, &cmd)
	return cmd, err
}

// AddPeerAsync submits a membership-change COMMAND that adds addr as
// a voter or learner once committed.
func (p *Partition) AddPeerAsync(addr HostAddr, learner bool) *submissionFuture {
	return p.SendCommandAsync(EncodeMembershipCommand(MembershipCommand{Op: MembershipAddPeer, Peer: addr, Learner: learner}))
}

// RemovePeerAsync submits a membership-change COMMAND that drops addr
// once committed. removePeer(self) is a no-op at commit time — actual
// teardown happens in an external "remove part" phase (spec.md
// §4.6.5), not here.
func (p *Partition) RemovePeerAsync(addr HostAddr) *submissionFuture {
	return p.SendCommandAsync(EncodeMembershipCommand(MembershipCommand{Op: MembershipRemovePeer, Peer: addr}))
}

// PromoteLearnerAsync submits a COMMAND that promotes addr from
// learner to voter once committed.
func (p *Partition) PromoteLearnerAsync(addr HostAddr) *submissionFuture {
	return p.SendCommandAsync(EncodeMembershipCommand(MembershipCommand{Op: MembershipPromoteLearner, Peer: addr}))
}

// TransferLeaderAsync submits a COMMAND that, once committed, makes
// the current leader step down so target can contest the next
// election. Grounded on the original's transfer-leadership command
// (supplemented feature — spec.md drops the full pre-vote handshake,
// but the committed-COMMAND trigger is enough to hand leadership over
// within one election round).
func (p *Partition) TransferLeaderAsync(target HostAddr) *submissionFuture {
	return p.SendCommandAsync(EncodeMembershipCommand(MembershipCommand{Op: MembershipTransferLeader, Peer: target}))
}

// applyMembershipLocal mutates the Peer Directory (and starts/stops
// the corresponding hostStub) for one decoded membership command. It
// never touches the WAL or the submission pipeline — callers decide
// when during recovery/append/commit this runs.
func (p *Partition) applyMembershipLocal(cmd MembershipCommand) {
	switch cmd.Op {
	case MembershipAddPeer:
		p.AddPeer(cmd.Peer, cmd.Learner)
	case MembershipPromoteLearner:
		p.AddPeer(cmd.Peer, false)
	case MembershipRemovePeer:
		if cmd.Peer == p.self {
			return
		}
		p.RemovePeer(cmd.Peer)
	case MembershipTransferLeader:
		if cmd.Peer == p.self {
			// Transferring to the replica already leading is the
			// original's no-op (RaftPart.cpp:428-441): nothing steps
			// down, nothing contests an election.
			if p.isLeader() {
				return
			}
			p.partitionLock.RLock()
			running := p.status == StatusRunning
			alreadyCandidate := p.role == RoleCandidate
			p.partitionLock.RUnlock()
			if running && !alreadyCandidate {
				// This replica is the designated target: contest the
				// seat immediately instead of waiting out a normal
				// election timeout, mirroring preProcessTransLeader's
				// priority vote request to the target (RaftPart.cpp:400-426).
				go p.startElection()
			}
			return
		}
		if p.isLeader() {
			p.stepDown(p.Term())
		}
	}
}

// applyMembershipFromEntries scans entries for COMMAND-typed
// membership payloads and applies every one, in order, before the
// caller hands the same entries to the Host's commit callback.
func (p *Partition) applyMembershipFromEntries(entries []LogEntry) {
	for _, e := range entries {
		if e.Type != LogCommand {
			continue
		}
		if cmd, err := DecodeMembershipCommand(e.Payload); err == nil {
			p.applyMembershipLocal(cmd)
		}
	}
}

// replayMembership reconstructs the Peer Directory from every
// COMMAND entry already in the WAL at construction time, before the
// partition's election/heartbeat timers ever start. Kept separate
// from walstore.Open's own preProcess hook (which only drives the
// Host) since the Peer Directory doesn't exist until NewPartition
// constructs it.
func (p *Partition) replayMembership() {
	last := p.wal.LastLogID()
	if last == 0 {
		return
	}
	it, err := p.wal.Iterator(1, last)
	if err != nil {
		return
	}
	for it.Valid() {
		e, err := it.Entry()
		if err == nil && LogType(e.Type) == LogCommand {
			if cmd, derr := DecodeMembershipCommand(e.Payload); derr == nil {
				p.applyMembershipLocal(cmd)
			}
		}
		it.Next()
	}
}
