package raftpart

import (
	"context"
	"sync"
)

// fakeHost is a minimal in-memory Host: it records every committed
// entry and counts lifecycle callbacks, enough to assert on without
// a real external state machine.
type fakeHost struct {
	mu        sync.Mutex
	committed []LogEntry
	elected   int
	lost      int
}

func (h *fakeHost) PreProcessLog(logID LogID, term Term, cluster ClusterID, payload []byte) bool {
	return true
}

func (h *fakeHost) CommitLogs(it LogIterator) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for it.Valid() {
		e, err := it.Entry()
		if err != nil {
			return false
		}
		h.committed = append(h.committed, e)
		it.Next()
	}
	return true
}

func (h *fakeHost) CommitSnapshot(rows [][]byte, logID LogID, logTerm Term, done bool) (int64, int64) {
	return int64(len(rows)), 0
}

func (h *fakeHost) OnElected(term Term) {
	h.mu.Lock()
	h.elected++
	h.mu.Unlock()
}

func (h *fakeHost) OnLostLeadership(term Term) {
	h.mu.Lock()
	h.lost++
	h.mu.Unlock()
}

func (h *fakeHost) OnDiscoverNewLeader(addr HostAddr) {}

func (h *fakeHost) Cleanup() {}

func (h *fakeHost) Committed() []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LogEntry, len(h.committed))
	copy(out, h.committed)
	return out
}

// noopTransport answers every RPC with ErrNotReady-equivalent failures;
// tests that don't care about replication fan-out (single-node
// membership/encoding checks) use this instead of a real network.
type noopTransport struct{}

func (noopTransport) AskForVote(ctx context.Context, to HostAddr, req *AskForVoteRequest) (*AskForVoteResponse, error) {
	return &AskForVoteResponse{ErrorCode: ErrNotReady}, nil
}

func (noopTransport) AppendLog(ctx context.Context, to HostAddr, req *AppendLogRequest) (*AppendLogResponse, error) {
	return &AppendLogResponse{ErrorCode: ErrNotReady}, nil
}

func (noopTransport) SendSnapshot(ctx context.Context, to HostAddr, req *SendSnapshotRequest) (*SendSnapshotResponse, error) {
	return &SendSnapshotResponse{ErrorCode: ErrNotReady}, nil
}

func newTestPartition(self HostAddr, host Host, transport Transport) *Partition {
	cfg := NewConfig()
	return NewPartition(1, 1, self, cfg, Deps{Host: host, Transport: transport})
}
