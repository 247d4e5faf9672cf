package raftpart

import "github.com/nebula-raftex/raftpart/internal/wire"

// HandleAppendLog answers an incoming AppendEntries-style call,
// implementing spec.md §4.6.4's seven numbered steps in order.
func (p *Partition) HandleAppendLog(req *AppendLogRequest) *AppendLogResponse {
	// Step 1: fast path for an accepted leader's keepalive.
	if req.KeepAlive {
		p.partitionLock.RLock()
		accepted := p.leader == req.Leader && p.term == req.CurrentTerm && p.status == StatusRunning
		p.partitionLock.RUnlock()
		if accepted {
			p.partitionLock.Lock()
			p.lastMsgAcceptedTimeMs = p.clock.NowMillis()
			p.partitionLock.Unlock()
			p.resetElectionTimer()
			return &AppendLogResponse{ErrorCode: Succeeded, CurrentTerm: req.CurrentTerm, Leader: req.Leader}
		}
	}

	p.partitionLock.Lock()

	// A transfer already in progress takes priority over ordinary log
	// matching — the follower's WAL was emptied for it.
	if p.status == StatusWaitingSnapshot {
		term := p.term
		p.partitionLock.Unlock()
		return &AppendLogResponse{ErrorCode: ErrWaitingSnapshot, CurrentTerm: term, Leader: req.Leader}
	}

	// Step 2: verifyLeader.
	if !p.peers.Known(req.Leader) && req.Leader != p.self {
		resp := &AppendLogResponse{ErrorCode: ErrWrongLeader, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	if req.CurrentTerm < p.term {
		resp := &AppendLogResponse{ErrorCode: ErrTermOutOfDate, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	if req.CurrentTerm > p.term && p.leader != (HostAddr{}) && p.leader != req.Leader &&
		p.cfg.LeaderStickiness && p.clock.NowMillis()-p.lastMsgAcceptedTimeMs < p.cfg.HeartbeatInterval.Milliseconds() {
		resp := &AppendLogResponse{ErrorCode: ErrWrongLeader, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}
	if req.CurrentTerm == p.term && p.leader != (HostAddr{}) && p.leader != req.Leader {
		resp := &AppendLogResponse{ErrorCode: ErrTermOutOfDate, CurrentTerm: p.term}
		p.partitionLock.Unlock()
		return resp
	}

	wasLeader := p.role == RoleLeader
	oldTerm := p.term
	if !p.peers.IsLearner(req.Leader) && req.Leader != p.self {
		if p.role != RoleLearner {
			p.role = RoleFollower
		}
	}
	p.leader = req.Leader
	p.term = req.CurrentTerm
	p.votedFor = HostAddr{}
	p.weight = 1
	p.lastMsgAcceptedTimeMs = p.clock.NowMillis()

	lastLogID := p.wal.LastLogID()
	if lastLogID > req.LastLogIDSent && req.LastLogIDSent >= p.committedLogID {
		// Local WAL has an uncommitted suffix beyond what the leader is
		// about to send; roll it back before appending.
		_ = p.wal.RollbackToLog(req.LastLogIDSent)
	}
	p.partitionLock.Unlock()
	p.resetElectionTimer()

	if wasLeader {
		p.host.OnLostLeadership(oldTerm)
	}
	p.host.OnDiscoverNewLeader(req.Leader)

	// Step 3: keepalive with a freshly accepted leader.
	if req.KeepAlive {
		return &AppendLogResponse{ErrorCode: Succeeded, CurrentTerm: req.CurrentTerm, Leader: req.Leader}
	}

	// Step 4: snapshot handoff.
	if req.SendingSnapshot {
		p.partitionLock.Lock()
		if p.status != StatusWaitingSnapshot {
			p.status = StatusWaitingSnapshot
			_ = p.wal.Reset()
		}
		p.partitionLock.Unlock()
		return &AppendLogResponse{ErrorCode: ErrWaitingSnapshot, CurrentTerm: req.CurrentTerm, Leader: req.Leader}
	}

	p.partitionLock.RLock()
	committedLogID := p.committedLogID
	p.partitionLock.RUnlock()
	lastLogID = p.wal.LastLogID()
	lastLogTerm := p.wal.LastLogTerm()

	// Step 5: log matching.
	if req.LastLogIDSent < committedLogID {
		resp := &AppendLogResponse{ErrorCode: ErrLogStale, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
			CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
		return resp
	}
	if lastLogTerm > 0 && req.LastLogTermSent != lastLogTerm {
		_ = p.wal.RollbackToLog(committedLogID)
		return &AppendLogResponse{ErrorCode: ErrLogGap, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
			CommittedLogID: committedLogID, LastLogID: p.wal.LastLogID(), LastLogTerm: p.wal.LastLogTerm()}
	}
	if req.LastLogIDSent > lastLogID {
		return &AppendLogResponse{ErrorCode: ErrLogGap, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
			CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
	}
	if req.LastLogIDSent < lastLogID {
		return &AppendLogResponse{ErrorCode: ErrLogStale, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
			CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
	}

	// Step 6: append. Membership COMMANDs take effect on the follower's
	// Peer Directory as soon as they're appended, ahead of commit
	// (spec.md §4.6.5 — preProcessLog runs "on the follower side when
	// the entry is appended").
	if len(req.Entries) > 0 {
		for _, e := range req.Entries {
			if !p.host.PreProcessLog(e.LogID, e.Term, e.Cluster, e.Payload) {
				return &AppendLogResponse{ErrorCode: ErrWALFail, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
					CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
			}
		}
		p.applyMembershipFromEntries(req.Entries)
		wireEntries := make([]wire.LogEntry, len(req.Entries))
		for i, e := range req.Entries {
			wireEntries[i] = walEntryFrom(e)
		}
		if err := p.wal.Append(wireEntries); err != nil {
			return &AppendLogResponse{ErrorCode: ErrWALFail, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
				CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
		}
	}
	lastLogID = p.wal.LastLogID()
	lastLogTerm = p.wal.LastLogTerm()

	// Step 7: advance commit. Entries are materialized into a slice
	// first so applyMembershipFromEntries can scan them for COMMANDs
	// before the Host sees them, mirroring the leader's own commit path
	// in appendLogsInternal.
	newCommitted := minLogID(lastLogID, req.CommittedLogID)
	if newCommitted > committedLogID {
		it, err := p.wal.Iterator(committedLogID+1, newCommitted)
		if err != nil {
			return &AppendLogResponse{ErrorCode: ErrWALFail, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
				CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
		}
		var entries []LogEntry
		for it.Valid() {
			e, err := it.Entry()
			if err != nil {
				return &AppendLogResponse{ErrorCode: ErrWALFail, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
					CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
			}
			entries = append(entries, walEntryTo(e))
			it.Next()
		}
		p.applyMembershipFromEntries(entries)
		if !p.host.CommitLogs(newSliceIterator(entries)) {
			return &AppendLogResponse{ErrorCode: ErrWALFail, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
				CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
		}
		p.partitionLock.Lock()
		p.committedLogID = newCommitted
		p.partitionLock.Unlock()
		committedLogID = newCommitted
	}

	return &AppendLogResponse{ErrorCode: Succeeded, CurrentTerm: req.CurrentTerm, Leader: req.Leader,
		CommittedLogID: committedLogID, LastLogID: lastLogID, LastLogTerm: lastLogTerm}
}
