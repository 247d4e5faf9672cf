package raftpart

import (
	"context"
	"time"

	"github.com/nebula-raftex/raftpart/internal/wire"
)

// AppendAsync submits a NORMAL log entry for replication. The
// returned future resolves to nil once the entry commits, or an error
// describing why it never will.
func (p *Partition) AppendAsync(payload []byte) *submissionFuture {
	return p.submit(clientSubmission{Type: LogNormal, Payload: payload})
}

// AtomicOpAsync submits a resolver that runs leader-locally exactly
// once; its returned payload (not any bytes the caller holds up
// front) is what gets persisted and replicated.
func (p *Partition) AtomicOpAsync(resolver func() ([]byte, bool)) *submissionFuture {
	return p.submit(clientSubmission{Type: LogAtomicOp, Resolver: resolver})
}

// SendCommandAsync submits a COMMAND entry — membership changes and
// leadership transfer ride this path. A COMMAND is always alone in
// its replication batch (appendLogsIterator rule 2).
func (p *Partition) SendCommandAsync(payload []byte) *submissionFuture {
	return p.submit(clientSubmission{Type: LogCommand, Payload: payload})
}

// SetWriteBlocking toggles the admin write-block switch (spec §4.6.3's
// E_WRITE_BLOCKING early rejection) — used to pause non-empty
// NORMAL/ATOMIC_OP submissions during an operator-driven maintenance
// window, without touching election or replication of already queued
// COMMAND entries.
func (p *Partition) SetWriteBlocking(blocking bool) {
	p.partitionLock.Lock()
	p.writeBlocking = blocking
	p.partitionLock.Unlock()
}

// submit implements spec.md §4.6.3 steps 1-3: early rejection,
// buffering under logsLock with the submission's own future attached
// (promise groups are formed later, per replication pass, by
// groupFrom), and single-flight dispatch of the replication loop.
func (p *Partition) submit(s clientSubmission) *submissionFuture {
	fut := newSubmissionFuture()
	s.fut = fut

	p.partitionLock.RLock()
	blocking := p.writeBlocking
	p.partitionLock.RUnlock()
	if blocking && (s.Type == LogAtomicOp || (s.Type == LogNormal && len(s.Payload) > 0)) {
		fut.resolve(newRaftError(ErrWriteBlocking, nil))
		return fut
	}

	p.logsLock.Lock()
	if p.buffer.Overflowing() || !p.buffer.Push(s) {
		p.logsLock.Unlock()
		fut.resolve(newRaftError(ErrBufferOverflow, nil))
		return fut
	}

	startFlight := !p.sending
	if startFlight {
		p.sending = true
	}
	p.logsLock.Unlock()

	if startFlight {
		p.io.Go(p.replicateNow)
	}
	return fut
}

// replicateNow drains logsBuffer into successive Append Iterators and
// runs each through appendLogsInternal until the buffer is empty,
// implementing steps 4 and 9 of spec.md §4.6.3 (the loop that keeps a
// single flight going as long as submissions keep arriving).
func (p *Partition) replicateNow() {
	for {
		p.partitionLock.RLock()
		canAppend := p.role == RoleLeader && p.status == StatusRunning
		firstID := p.wal.LastLogID() + 1
		termID := p.term
		p.partitionLock.RUnlock()

		if !canAppend {
			p.abortFlight(newRaftError(ErrNotALeader, nil))
			return
		}

		p.logsLock.Lock()
		submissions := p.buffer.DrainAll()
		p.logsLock.Unlock()

		if len(submissions) == 0 {
			p.logsLock.Lock()
			p.sending = false
			p.logsLock.Unlock()
			return
		}

		iter := newAppendLogsIterator(firstID, termID, 0, submissions)
		// The group is scoped to exactly what this iterator pass consumed
		// (Consumed(), never the whole drained batch) so a submission left
		// behind at a COMMAND/atomic-op boundary can't be resolved before
		// the later flight that actually replicates it runs.
		group := groupFrom(iter.Consumed())
		if !iter.Empty() {
			if !p.appendLogsInternal(iter, termID, group) {
				return
			}
		} else {
			// Every leading submission was a failed atomic op; nothing
			// to persist this round, but the group's single-sink futures
			// were already resolved with the failure by the iterator.
		}

		if remaining := iter.Remaining(); len(remaining) > 0 {
			p.logsLock.Lock()
			// Entries left over by the COMMAND-alone / second-atomic-op
			// boundary go back to the front of the buffer for the next
			// pass through this same loop.
			p.buffer.Requeue(remaining)
			p.logsLock.Unlock()
		}
	}
}

// appendLogsInternal implements spec.md §4.6.3 steps 5-8: re-verify
// leadership, persist the batch to the WAL, replicate it to quorum,
// advance the commit point, and fulfil the attached futures.
func (p *Partition) appendLogsInternal(iter *appendLogsIterator, termID Term, group *promiseGroup) bool {
	p.partitionLock.RLock()
	ok := p.role == RoleLeader && p.status == StatusRunning && p.term == termID
	prevTerm := p.wal.LastLogTerm()
	p.partitionLock.RUnlock()
	if !ok {
		p.abortWithGroup(group, newRaftError(ErrNotALeader, nil))
		return false
	}

	entries := iter.Entries()
	wireEntries := make([]wire.LogEntry, len(entries))
	for i, e := range entries {
		wireEntries[i] = walEntryFrom(e)
	}
	if err := p.wal.Append(wireEntries); err != nil {
		p.abortWithGroup(group, newRaftError(ErrWALFailure, err))
		return false
	}

	if !p.replicateLogs(entries, termID, prevTerm) {
		p.abortWithGroup(group, newRaftError(ErrWrongLeaderClient, nil))
		return false
	}

	p.partitionLock.Lock()
	if p.role != RoleLeader || p.status != StatusRunning || p.term != termID {
		p.partitionLock.Unlock()
		p.abortWithGroup(group, newRaftError(ErrNotALeader, nil))
		return false
	}
	oldCommitted := p.committedLogID
	lastEntry := entries[len(entries)-1]
	p.partitionLock.Unlock()

	if lastEntry.LogID > oldCommitted {
		p.applyMembershipFromEntries(entries)
		if !p.host.CommitLogs(newSliceIterator(entries)) {
			p.abortWithGroup(group, newRaftError(ErrWALFailure, nil))
			return false
		}
		p.partitionLock.Lock()
		p.committedLogID = lastEntry.LogID
		p.lastMsgAcceptedTimeMs = p.clock.NowMillis()
		p.partitionLock.Unlock()
	}

	if iter.HasNonAtomicOpLogs() {
		group.resolveShared(nil)
	}
	if iter.LeadByAtomicOp() {
		group.resolveSingle(nil)
	}
	return true
}

// replicateLogs fans AppendLog out to every voter through its hostStub
// and blocks until quorum of voter successes or the retry budget is
// exhausted. On sub-quorum it retries with a small linear backoff, per
// spec.md §4.6.3's "increment retryNum and resubmit ... after
// retryNum ms".
func (p *Partition) replicateLogs(entries []LogEntry, termID Term, prevTerm Term) bool {
	p.partitionLock.RLock()
	leader := p.self
	committedLogID := p.committedLogID
	voters := p.peers.Voters()
	stubs := make(map[HostAddr]*hostStub, len(voters))
	for _, a := range voters {
		stubs[a] = p.stubs[a]
	}
	p.partitionLock.RUnlock()

	if len(voters) == 0 {
		return true
	}

	prevLogID := entries[0].LogID - 1
	lastEntry := entries[len(entries)-1]
	needed := quorumOf(len(voters)+1) - 1 // other grants needed beyond self

	const maxRetries = 3
	for retryNum := 1; retryNum <= maxRetries; retryNum++ {
		req := &AppendLogRequest{
			Space: p.space, Part: p.part, Leader: leader, CurrentTerm: termID,
			LastLogID: lastEntry.LogID, CommittedLogID: committedLogID,
			LastLogIDSent: prevLogID, LastLogTermSent: prevTerm, LogTerm: termID,
			Entries: entries,
		}

		acked := make(chan bool, len(voters))
		for addr := range stubs {
			addr := addr
			stub := stubs[addr]
			p.io.Go(func() {
				if stub == nil {
					acked <- false
					return
				}
				p.touchContact(addr)
				ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HeartbeatInterval)
				defer cancel()
				res := stub.AppendLogs(ctx, req).Wait()
				acked <- res.err == nil && res.resp != nil && res.resp.ErrorCode == Succeeded
			})
		}

		got := 0
		for i := 0; i < len(voters); i++ {
			if <-acked {
				got++
			}
		}
		if got >= needed {
			return true
		}
		if retryNum < maxRetries {
			time.Sleep(time.Duration(retryNum) * time.Millisecond)
		}
	}
	return false
}

// abortFlight implements checkAppendLogResult for the case where no
// flight group has been split off yet: whatever is currently buffered
// fails as a whole.
func (p *Partition) abortFlight(err error) {
	p.logsLock.Lock()
	submissions := p.buffer.DrainAll()
	p.sending = false
	p.logsLock.Unlock()
	groupFrom(submissions).resolveAll(err)
}

// abortWithGroup is checkAppendLogResult for a flight already under
// way: the flight's own group fails, and anything queued behind it
// since the swap (earlier Remaining() requeues, or brand new
// submissions) fails too.
func (p *Partition) abortWithGroup(group *promiseGroup, err error) {
	group.resolveAll(err)
	p.logsLock.Lock()
	submissions := p.buffer.DrainAll()
	p.sending = false
	p.logsLock.Unlock()
	groupFrom(submissions).resolveAll(err)
}
