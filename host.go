package raftpart

import "context"

// LogIterator is what CommitLogs walks over: a cursor over committed
// entries ready to apply to the state machine. Concrete iterators wrap
// either the WAL Adapter (C3, for entries replayed from disk or
// recovered on CommitLogs) or an in-memory slice (for entries just
// accepted in an AppendLog request).
type LogIterator interface {
	// Valid reports whether the cursor currently points at an entry.
	Valid() bool
	// Entry returns the entry at the current position.
	Entry() (LogEntry, error)
	// Next advances the cursor by one.
	Next()
}

// Host is the capability a state machine implements to sit behind a
// partition. Every call arrives already serialized with respect to
// other Host calls for the same partition: the partition core never
// invokes two Host methods concurrently.
//
// Grounded on the teacher's raft.go StateMachine interface
// (preProcessLog/commitLogs/onLeaderElected/onLeaderLost/cleanup),
// generalized to the fuller callback set spec.md §6 names.
type Host interface {
	// PreProcessLog is called once per log entry, in order, before it
	// is appended to the WAL, for entries this replica accepts as a
	// follower in HandleAppendLog. Entries this replica appends as
	// leader are not passed through it. Returning false rejects the
	// entry (used by membership-change validation).
	PreProcessLog(logID LogID, term Term, cluster ClusterID, payload []byte) bool

	// CommitLogs applies every entry in it, in order, to the state
	// machine. Returns false if application failed; the partition then
	// refuses to advance its committed log ID past the failure.
	CommitLogs(it LogIterator) bool

	// CommitSnapshot applies a batch of opaque snapshot rows. done
	// marks the final batch of a transfer. Returns the running count
	// and byte total applied so far, which the Snapshot Coordinator
	// (C7) reports back to the leader.
	CommitSnapshot(rows [][]byte, logID LogID, logTerm Term, done bool) (count, bytes int64)

	// OnElected fires once this replica becomes leader for term.
	OnElected(term Term)
	// OnLostLeadership fires once this replica steps down from
	// leadership held during term.
	OnLostLeadership(term Term)
	// OnDiscoverNewLeader fires each time HandleAppendLog accepts a
	// request from a leader outside the keepalive fast path, whether or
	// not that leader is new. Vote responses do not trigger it.
	OnDiscoverNewLeader(addr HostAddr)

	// Cleanup releases any resources the Host holds when the
	// partition is permanently stopped.
	Cleanup()
}

// Transport is the wire boundary spec.md §6 describes but leaves
// external: the three RPCs every peer exchanges. Concrete bindings
// live in transport/quicrpc (hot replication path) and
// transport/adminrpc (operator surface); tests use an in-process fake.
type Transport interface {
	AskForVote(ctx context.Context, to HostAddr, req *AskForVoteRequest) (*AskForVoteResponse, error)
	AppendLog(ctx context.Context, to HostAddr, req *AppendLogRequest) (*AppendLogResponse, error)
	SendSnapshot(ctx context.Context, to HostAddr, req *SendSnapshotRequest) (*SendSnapshotResponse, error)
}

// AskForVoteRequest is the root-package mirror of internal/wire's wire
// struct, used at the Host/Transport boundary so callers never import
// the internal codec package directly.
type AskForVoteRequest struct {
	Space, Part SpaceID
	Candidate   HostAddr
	Term        Term
	LastLogID   LogID
	LastLogTerm Term
}

type AskForVoteResponse struct {
	ErrorCode   ErrorCode
	CurrentTerm Term
}

type AppendLogRequest struct {
	Space, Part     SpaceID
	Leader          HostAddr
	CurrentTerm     Term
	LastLogID       LogID
	CommittedLogID  LogID
	LastLogIDSent   LogID
	LastLogTermSent Term
	LogTerm         Term
	Entries         []LogEntry
	SendingSnapshot bool
	KeepAlive       bool
}

type AppendLogResponse struct {
	ErrorCode      ErrorCode
	CurrentTerm    Term
	Leader         HostAddr
	CommittedLogID LogID
	LastLogID      LogID
	LastLogTerm    Term
}

type SendSnapshotRequest struct {
	Space, Part      SpaceID
	Leader           HostAddr
	Term             Term
	Rows             [][]byte
	CommittedLogID   LogID
	CommittedLogTerm Term
	TotalCount       int64
	TotalSize        int64
	Done             bool
}

type SendSnapshotResponse struct {
	ErrorCode ErrorCode
}
