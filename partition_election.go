package raftpart

import (
	"context"
	"sync/atomic"
)

// resetElectionTimer cancels any pending election timer and schedules
// a fresh one after a weighted randomized delay. Called on startup,
// on every valid AppendLog from the current leader, and after losing
// an election.
func (p *Partition) resetElectionTimer() {
	p.partitionLock.Lock()
	weight := p.weight
	if p.electionTimer != nil {
		p.electionTimer.Stop()
	}
	p.electionTimer = p.scheduler.AfterFunc(electionBackoff(weight), p.onElectionTimeout)
	p.partitionLock.Unlock()
}

// resetHeartbeatTimer (re)schedules the next leader heartbeat tick.
func (p *Partition) resetHeartbeatTimer() {
	p.partitionLock.Lock()
	if p.heartbeatTimer != nil {
		p.heartbeatTimer.Stop()
	}
	p.heartbeatTimer = p.scheduler.AfterFunc(p.cfg.HeartbeatInterval, p.onHeartbeatTick)
	p.partitionLock.Unlock()
}

// onElectionTimeout fires when no valid AppendLog arrived from a
// leader within the current backoff window. A Follower or Candidate
// starts (or restarts) an election; a Leader ignores its own
// election timer, since its heartbeat timer supersedes it once it
// resets the timer on becoming leader.
func (p *Partition) onElectionTimeout() {
	select {
	case <-p.stopCh:
		return
	default:
	}

	p.partitionLock.RLock()
	role := p.role
	status := p.status
	p.partitionLock.RUnlock()
	if role == RoleLeader || status != StatusRunning {
		return
	}

	p.startElection()
}

// startElection increments the term, votes for self, and fans out
// AskForVote to every voter. Grounded on the original's leader
// election path (RaftPart.cpp startElection/candidate handling),
// generalized from the teacher's single select-loop branch
// ("case \"follower\"/\"candidate\"" in raft_sm.go) into a standalone
// method callable from either the election timer or a failed vote.
func (p *Partition) startElection() {
	p.partitionLock.Lock()
	p.role = RoleCandidate
	p.term++
	term := p.term
	p.votedFor = p.self
	lastLogID := p.wal.LastLogID()
	lastLogTerm := p.wal.LastLogTerm()
	voters := p.peers.Voters()
	p.partitionLock.Unlock()

	p.resetElectionTimer()
	p.log.Info("starting election", "term", term)

	if len(voters) == 0 {
		// Single-node partition: self-vote alone already satisfies
		// quorum(1) = 1.
		p.becomeLeader(term)
		return
	}

	votes := 1 // self
	granted := make(chan bool, len(voters))
	var sawLogStale atomic.Bool

	req := &AskForVoteRequest{
		Space:       p.space,
		Part:        p.part,
		Candidate:   p.self,
		Term:        term,
		LastLogID:   lastLogID,
		LastLogTerm: lastLogTerm,
	}

	for _, addr := range voters {
		addr := addr
		p.io.Go(func() {
			p.partitionLock.RLock()
			stub := p.stubs[addr]
			p.partitionLock.RUnlock()
			if stub == nil {
				granted <- false
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HeartbeatInterval)
			defer cancel()
			res := stub.AskForVote(ctx, req).Wait()
			if res.err != nil || res.resp == nil {
				granted <- false
				return
			}
			if res.resp.CurrentTerm > term {
				p.stepDown(res.resp.CurrentTerm)
				granted <- false
				return
			}
			if res.resp.ErrorCode == ErrLogStale {
				sawLogStale.Store(true)
			}
			granted <- res.resp.ErrorCode == Succeeded
		})
	}

	needed := quorumOf(len(voters) + 1)
	for i := 0; i < len(voters); i++ {
		if <-granted {
			votes++
		}
		if votes >= needed {
			p.becomeLeader(term)
			return
		}
	}

	// No quorum: the next election timeout retries. If any voter found
	// this candidate's log stale (E_LOG_STALE), the weight doubles so
	// the randomized delay backs off exponentially; other rejections
	// leave the weight unchanged.
	p.partitionLock.Lock()
	if p.role == RoleCandidate && p.term == term && sawLogStale.Load() {
		p.weight *= 2
	}
	p.partitionLock.Unlock()
}

// HandleAskForVote answers an incoming vote request, implementing
// spec.md §4.6.2's vote-grant rules in order (five once the dead
// duplicate-vote check is folded into the stale-term rule above).
func (p *Partition) HandleAskForVote(req *AskForVoteRequest) *AskForVoteResponse {
	p.partitionLock.Lock()

	// Rule 1: stopped/starting/waiting-snapshot.
	if p.status != StatusRunning {
		resp := &AskForVoteResponse{ErrorCode: ErrNotReady, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	// Rule 2: caller must be a known, non-learner peer.
	if p.peers.IsLearner(req.Candidate) || !p.peers.Known(req.Candidate) {
		resp := &AskForVoteResponse{ErrorCode: ErrBadRole, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	// Rule 3: stale term.
	if req.Term <= p.term {
		resp := &AskForVoteResponse{ErrorCode: ErrTermOutOfDate, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	// Rule 4: candidate's log must be at least as up to date.
	lastLogID := p.wal.LastLogID()
	lastLogTerm := p.wal.LastLogTerm()
	if req.LastLogTerm < lastLogTerm ||
		(req.LastLogTerm == lastLogTerm && req.LastLogID < lastLogID) {
		resp := &AskForVoteResponse{ErrorCode: ErrLogStale, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	// Rule 5: grant. Rule 3 already guarantees req.Term > p.term here, so
	// there is no separate "already voted this term" case to check
	// against a single-field term; the stale-term rule above subsumes it.

	p.role = RoleFollower
	p.votedFor = req.Candidate
	p.term = req.Term
	p.leader = HostAddr{}
	p.weight = 1
	p.lastMsgAcceptedTimeMs = p.clock.NowMillis()
	term := p.term
	p.partitionLock.Unlock()

	p.resetElectionTimer()
	return &AskForVoteResponse{ErrorCode: Succeeded, CurrentTerm: term}
}

// termUpdateLocked advances to a newer term, clearing any existing
// vote. Caller must hold partitionLock.
func (p *Partition) termUpdateLocked(term Term) {
	p.term = term
	p.votedFor = HostAddr{}
	if p.role == RoleLeader {
		p.role = RoleFollower
	}
}

// stepDown reverts to Follower at a newer term, firing
// OnLostLeadership if this replica was leading.
func (p *Partition) stepDown(term Term) {
	p.partitionLock.Lock()
	wasLeader := p.role == RoleLeader
	oldTerm := p.term
	if term > p.term {
		p.termUpdateLocked(term)
	} else {
		p.role = RoleFollower
	}
	p.partitionLock.Unlock()

	if wasLeader {
		p.host.OnLostLeadership(oldTerm)
		p.partitionLock.Lock()
		if p.syncTimer != nil {
			p.syncTimer.Stop()
		}
		p.partitionLock.Unlock()
	}
	p.resetElectionTimer()
}

// becomeLeader transitions a Candidate to Leader for term, resets
// every peer's replication cursor, and starts the heartbeat cadence.
func (p *Partition) becomeLeader(term Term) {
	p.partitionLock.Lock()
	if p.role != RoleCandidate || p.term != term {
		p.partitionLock.Unlock()
		return
	}
	p.role = RoleLeader
	p.leader = p.self
	p.weight = 1
	lastLogID := p.wal.LastLogID()
	stubs := make([]*hostStub, 0, len(p.stubs))
	for _, s := range p.stubs {
		stubs = append(stubs, s)
	}
	p.partitionLock.Unlock()

	for _, s := range stubs {
		s.Reset(lastLogID)
	}

	p.log.Info("became leader", "term", term)
	p.host.OnElected(term)
	p.resetHeartbeatTimer()
	p.resetSyncTimer()

	// A fresh no-op KeepAlive flight establishes leadership with every
	// peer immediately, instead of waiting out a full heartbeat
	// interval.
	p.io.Go(p.replicateNow)
}

// onHeartbeatTick fires the leader's periodic KeepAlive/AppendLog
// fan-out. No-op once the replica stops being leader.
func (p *Partition) onHeartbeatTick() {
	select {
	case <-p.stopCh:
		return
	default:
	}
	if !p.isLeader() {
		return
	}
	p.io.Go(p.replicateNow)
	p.resetHeartbeatTimer()
}

// resetSyncTimer (re)arms the sync-with-follower tick. A no-op unless
// Config.EnableSyncWithFollower is set — spec.md §6 enumerates the
// flag and interval but leaves C6's own heartbeat/replication traffic
// as the default, unaugmented path.
func (p *Partition) resetSyncTimer() {
	if !p.cfg.EnableSyncWithFollower {
		return
	}
	p.partitionLock.Lock()
	if p.syncTimer != nil {
		p.syncTimer.Stop()
	}
	p.syncTimer = p.scheduler.AfterFunc(p.cfg.SyncWithFollowerInterval, p.onSyncTick)
	p.partitionLock.Unlock()
}

// onSyncTick pings every peer this leader hasn't contacted within
// SyncWithFollowerInterval with a no-op KeepAlive, independently of
// the ordinary heartbeat/replication cadence. Keeps lastSentTime fresh
// for peers a busier replication loop might otherwise skip over.
func (p *Partition) onSyncTick() {
	select {
	case <-p.stopCh:
		return
	default:
	}
	if !p.isLeader() {
		return
	}

	p.partitionLock.RLock()
	staleBefore := p.clock.NowMillis() - p.cfg.SyncWithFollowerInterval.Milliseconds()
	leader := p.self
	term := p.term
	committedLogID := p.committedLogID
	lastLogID := p.wal.LastLogID()
	lastLogTerm := p.wal.LastLogTerm()
	stale := make(map[HostAddr]*hostStub)
	for addr, stub := range p.stubs {
		if p.peerLastContactMs[addr] < staleBefore {
			stale[addr] = stub
		}
	}
	p.partitionLock.RUnlock()

	for addr, stub := range stale {
		addr, stub := addr, stub
		p.io.Go(func() {
			p.touchContact(addr)
			req := &AppendLogRequest{
				Space: p.space, Part: p.part, Leader: leader, CurrentTerm: term,
				LastLogID: lastLogID, CommittedLogID: committedLogID,
				LastLogIDSent: lastLogID, LastLogTermSent: lastLogTerm, LogTerm: term,
			}
			stub.KeepAlive(context.Background(), req).Wait()
		})
	}
	p.resetSyncTimer()
}

