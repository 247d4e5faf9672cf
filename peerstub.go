package raftpart

import (
	"context"
	"errors"
	"sync"

	"github.com/nebula-raftex/raftpart/internal/futures"
	"github.com/nebula-raftex/raftpart/internal/walstore"
)

// ErrHostBusy is returned (via the result future) when a caller tries
// to start a second AppendLogs/AskForVote/SendSnapshot call on a peer
// that already has one in flight.
var ErrHostBusy = errors.New("raftpart: peer already has an rpc in flight")

// peerCursorState is the per-peer replication state machine:
// IDLE -> SENDING -> {OK, GAP_RETRY, SNAPSHOT} -> IDLE.
type peerCursorState int

const (
	peerIdle peerCursorState = iota
	peerSending
	peerOK
	peerGapRetry
	peerSnapshot
)

func (s peerCursorState) String() string {
	switch s {
	case peerIdle:
		return "idle"
	case peerSending:
		return "sending"
	case peerOK:
		return "ok"
	case peerGapRetry:
		return "gap_retry"
	case peerSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// appendResult is what an AppendLogs/KeepAlive call resolves to.
type appendResult struct {
	resp *AppendLogResponse
	err  error
}

// voteResult is what an AskForVote call resolves to.
type voteResult struct {
	resp *AskForVoteResponse
	err  error
}

// snapshotResult is what a SendSnapshot call resolves to.
type snapshotResult struct {
	resp *SendSnapshotResponse
	err  error
}

// hostStub is the per-peer Host stub (C5): one peer's replication
// cursor (nextIndex/matchIndex/lastSentLogID/sendingSnapshot) plus the
// bookkeeping that enforces at most one in-flight AppendEntries-style
// RPC per peer at a time.
//
// Grounded on the teacher's request/response-over-channel idiom
// (reqGetState/sendCmdChan in raft.go) — generalized with
// internal/futures so one Future type serves AppendLogs, AskForVote,
// and SendSnapshot instead of a bespoke *Info struct per RPC kind.
type hostStub struct {
	addr      HostAddr
	transport Transport
	wal       *walstore.Store

	mu              sync.Mutex
	state           peerCursorState
	busy            bool
	isLearner       bool
	nextIndex       LogID
	matchIndex      LogID
	lastSentLogID   LogID
	lastSentTermID  Term
	sendingSnapshot bool

	// onNeedsSnapshot fires (off the RPC goroutine) the first time this
	// peer falls behind the leader's WAL retention window and must be
	// caught up via the Snapshot Coordinator (C7) instead of AppendLogs.
	onNeedsSnapshot func(addr HostAddr)

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

func newHostStub(addr HostAddr, transport Transport, isLearner bool, wal *walstore.Store) *hostStub {
	return &hostStub{
		addr:      addr,
		transport: transport,
		wal:       wal,
		state:     peerIdle,
		isLearner: isLearner,
		stopped:   make(chan struct{}),
	}
}

// snapshot returns a copy of the stub's cursor state for bookkeeping
// reads that don't need to block on an in-flight RPC.
func (h *hostStub) snapshot() (nextIndex, matchIndex LogID, state peerCursorState, sendingSnapshot bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextIndex, h.matchIndex, h.state, h.sendingSnapshot
}

// Reset reinitializes the cursor after an election — nextIndex starts
// optimistically at lastLogID+1, matchIndex at 0, per spec.md §4.6.4's
// "every peer's nextIndex resets to the new leader's lastLogID+1".
func (h *hostStub) Reset(lastLogID LogID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextIndex = lastLogID + 1
	h.matchIndex = 0
	h.lastSentLogID = 0
	h.sendingSnapshot = false
	h.state = peerIdle
}

// tryStart flips the stub to busy/SENDING, or reports ErrHostBusy if
// an RPC is already outstanding.
func (h *hostStub) tryStart() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy {
		return false
	}
	h.busy = true
	h.state = peerSending
	return true
}

func (h *hostStub) finish(next peerCursorState) {
	h.mu.Lock()
	h.busy = false
	h.state = next
	h.mu.Unlock()
}

// AppendLogs sends req to this peer and returns a future for the
// response. Entries may be empty — callers use that shape for
// KeepAlive. Rejects immediately (ErrHostBusy) if an RPC to this peer
// is already in flight.
func (h *hostStub) AppendLogs(ctx context.Context, req *AppendLogRequest) *futures.Future[appendResult] {
	fut := futures.New[appendResult]()
	if !h.tryStart() {
		fut.Resolve(appendResult{err: ErrHostBusy})
		return fut
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		resp, err := h.transport.AppendLog(ctx, h.addr, req)

		next := peerGapRetry
		needsSnapshot := false
		switch {
		case err != nil:
			next = peerGapRetry
		case resp.ErrorCode == Succeeded:
			sent := req.LastLogIDSent + LogID(len(req.Entries))
			h.mu.Lock()
			h.matchIndex = sent
			h.nextIndex = sent + 1
			h.lastSentLogID = sent
			h.lastSentTermID = req.LogTerm
			h.sendingSnapshot = false
			h.mu.Unlock()
			next = peerOK
		case resp.ErrorCode == ErrWaitingSnapshot:
			h.mu.Lock()
			h.sendingSnapshot = true
			h.mu.Unlock()
			next = peerSnapshot
			needsSnapshot = true
		case resp.ErrorCode == ErrLogGap:
			// Decrement nextIndex and retry next flight; if the leader's
			// WAL no longer covers the resulting range, this peer can
			// only be caught up via the Snapshot Coordinator.
			h.mu.Lock()
			if h.nextIndex > 1 {
				h.nextIndex--
			}
			firstID := int64(0)
			if h.wal != nil {
				firstID = h.wal.FirstLogID()
			}
			if h.nextIndex-1 < firstID {
				h.sendingSnapshot = true
				needsSnapshot = true
				next = peerSnapshot
			}
			h.mu.Unlock()
		default:
			next = peerGapRetry
		}

		h.finish(next)
		if needsSnapshot && h.onNeedsSnapshot != nil {
			go h.onNeedsSnapshot(h.addr)
		}
		fut.Resolve(appendResult{resp: resp, err: err})
	}()
	return fut
}

// KeepAlive sends an empty, KeepAlive-flagged AppendLog request —
// the idle-heartbeat shape of AppendLogs.
func (h *hostStub) KeepAlive(ctx context.Context, req *AppendLogRequest) *futures.Future[appendResult] {
	req.KeepAlive = true
	req.Entries = nil
	return h.AppendLogs(ctx, req)
}

// AskForVote requests this peer's vote.
func (h *hostStub) AskForVote(ctx context.Context, req *AskForVoteRequest) *futures.Future[voteResult] {
	fut := futures.New[voteResult]()
	if !h.tryStart() {
		fut.Resolve(voteResult{err: ErrHostBusy})
		return fut
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		resp, err := h.transport.AskForVote(ctx, h.addr, req)
		h.finish(peerIdle)
		fut.Resolve(voteResult{resp: resp, err: err})
	}()
	return fut
}

// SendSnapshot forwards one batch of a snapshot transfer to this peer.
func (h *hostStub) SendSnapshot(ctx context.Context, req *SendSnapshotRequest) *futures.Future[snapshotResult] {
	fut := futures.New[snapshotResult]()
	if !h.tryStart() {
		fut.Resolve(snapshotResult{err: ErrHostBusy})
		return fut
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		resp, err := h.transport.SendSnapshot(ctx, h.addr, req)
		next := peerSnapshot
		if req.Done && err == nil && resp.ErrorCode == Succeeded {
			next = peerIdle
		}
		h.finish(next)
		fut.Resolve(snapshotResult{resp: resp, err: err})
	}()
	return fut
}

// Stop marks the stub as shutting down; outstanding RPC goroutines
// run to completion but no new ones should be started by the caller
// after this returns.
func (h *hostStub) Stop() {
	h.stopOnce.Do(func() { close(h.stopped) })
}

// WaitForStop blocks until every in-flight RPC goroutine this stub
// started has returned.
func (h *hostStub) WaitForStop() {
	h.wg.Wait()
}
