package raftpart

import "context"

// SnapshotSource produces the opaque rows a leader streams to a peer
// that has fallen behind the WAL's retention window. Snapshot
// production is external to this module (spec.md §1 lists it as a
// Non-goal): a Host implementation supplies one alongside the Host
// itself when the deployment wants lagging peers to ever catch up by
// any means other than waiting for the WAL to outlast them.
type SnapshotSource interface {
	// NextBatch returns the next batch of rows for a transfer, or
	// done=true once the source is exhausted. Each call may block.
	NextBatch(ctx context.Context) (rows [][]byte, done bool, err error)
}

// startSnapshotTransfer is the Snapshot Coordinator's entry point
// (C7): it drives SendSnapshotRequest frames to addr until the source
// is exhausted or the peer stops acking, per spec.md §4.6.6. Called
// from a hostStub's onNeedsSnapshot callback, off the RPC goroutine.
func (p *Partition) startSnapshotTransfer(addr HostAddr) {
	p.partitionLock.Lock()
	if p.transferring[addr] || p.snapshotSource == nil {
		p.partitionLock.Unlock()
		return
	}
	if p.role != RoleLeader || p.status != StatusRunning {
		p.partitionLock.Unlock()
		return
	}
	p.transferring[addr] = true
	stub := p.stubs[addr]
	term := p.term
	committedLogID := p.committedLogID
	committedLogTerm := p.wal.LastLogTerm()
	self := p.self
	p.partitionLock.Unlock()

	defer func() {
		p.partitionLock.Lock()
		delete(p.transferring, addr)
		p.partitionLock.Unlock()
	}()

	if stub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SnapshotTimeout)
	defer cancel()

	var totalCount, totalSize int64
	for {
		rows, done, err := p.snapshotSource.NextBatch(ctx)
		if err != nil {
			p.log.Warn("snapshot source failed", "peer", addr.String(), "err", err)
			return
		}
		totalCount += int64(len(rows))
		for _, r := range rows {
			totalSize += int64(len(r))
		}

		req := &SendSnapshotRequest{
			Space: p.space, Part: p.part, Leader: self, Term: term,
			Rows: rows, CommittedLogID: committedLogID, CommittedLogTerm: committedLogTerm,
			TotalCount: totalCount, TotalSize: totalSize, Done: done,
		}
		res := stub.SendSnapshot(ctx, req).Wait()
		if res.err != nil || res.resp == nil || res.resp.ErrorCode != Succeeded {
			p.log.Warn("snapshot frame rejected", "peer", addr.String(), "err", res.err)
			return
		}
		if done {
			stub.Reset(committedLogID)
			p.log.Info("snapshot transfer complete", "peer", addr.String(), "rows", totalCount, "bytes", totalSize)
			return
		}
	}
}

// HandleSendSnapshot answers one frame of an incoming snapshot
// transfer, implementing spec.md §4.6.6's follower-side handling:
// reset into WAITING_SNAPSHOT on the first frame, ingest every frame
// via the Host, and verify the sender's cumulative counters against
// what the Host actually accepted.
func (p *Partition) HandleSendSnapshot(req *SendSnapshotRequest) *SendSnapshotResponse {
	p.partitionLock.Lock()
	if p.status != StatusWaitingSnapshot {
		p.status = StatusWaitingSnapshot
		_ = p.wal.Reset()
	}
	p.lastMsgAcceptedTimeMs = p.clock.NowMillis()
	p.partitionLock.Unlock()
	p.resetSnapshotTimer()

	count, bytes := p.host.CommitSnapshot(req.Rows, req.CommittedLogID, req.CommittedLogTerm, req.Done)
	if count != req.TotalCount || bytes != req.TotalSize {
		return &SendSnapshotResponse{ErrorCode: ErrPersistSnapshotFailed}
	}

	if req.Done {
		p.partitionLock.Lock()
		p.status = StatusRunning
		p.committedLogID = req.CommittedLogID
		p.partitionLock.Unlock()
		if p.snapshotTimer != nil {
			p.snapshotTimer.Stop()
		}
	}
	return &SendSnapshotResponse{ErrorCode: Succeeded}
}

// resetSnapshotTimer (re)arms the per-transfer progress timeout. If no
// further frame arrives within SnapshotTimeout, cleanupSnapshot fires
// and the follower falls back to RUNNING with an empty WAL — the
// leader's next heartbeat will re-detect the gap and retry.
func (p *Partition) resetSnapshotTimer() {
	p.partitionLock.Lock()
	if p.snapshotTimer != nil {
		p.snapshotTimer.Stop()
	}
	p.snapshotTimer = p.scheduler.AfterFunc(p.cfg.SnapshotTimeout, p.cleanupSnapshot)
	p.partitionLock.Unlock()
}

// cleanupSnapshot aborts a stalled snapshot transfer on the follower
// side, per spec.md §4.6.6.
func (p *Partition) cleanupSnapshot() {
	p.partitionLock.Lock()
	if p.status == StatusWaitingSnapshot {
		p.status = StatusRunning
		_ = p.wal.Reset()
		p.committedLogID = 0
	}
	p.partitionLock.Unlock()
}
