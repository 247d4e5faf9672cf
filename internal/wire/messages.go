// Package wire defines the on-wire and on-disk message shapes for the
// three Raft RPCs and for a single log entry, plus hand-rolled
// marshal/unmarshal built on google.golang.org/protobuf/encoding/protowire.
//
// The teacher (markity-uraft) encodes its RPCs with proto.Marshal
// against .proto-generated types. No .proto sources ship with this
// pack, and hand-authoring fake "generated" code (a ProtoReflect()
// implementation backed by a hand-built descriptor) would mean
// fabricating codegen the task rules forbid; protowire is the real,
// documented low-level API of the same module for exactly this case —
// reading and writing tagged fields without a descriptor.
package wire

// LogEntry is the on-disk/on-wire shape of one replicated log entry.
type LogEntry struct {
	LogID   int64
	Term    int64
	Cluster int64
	Type    int32
	Payload []byte
}

// AskForVoteRequest is the ballot RPC a candidate sends to each voter.
type AskForVoteRequest struct {
	Space       int64
	Part        int64
	Candidate   HostAddr
	Term        int64
	LastLogID   int64
	LastLogTerm int64
}

// AskForVoteResponse carries one of the wire error codes.
type AskForVoteResponse struct {
	ErrorCode int32
	CurrentTerm int64
}

// AppendLogRequest carries a contiguous batch of entries (or none, for
// a heartbeat) plus the leader's replication cursor.
type AppendLogRequest struct {
	Space            int64
	Part             int64
	Leader           HostAddr
	CurrentTerm      int64
	LastLogID        int64
	CommittedLogID   int64
	LastLogIDSent    int64
	LastLogTermSent  int64
	LogTerm          int64
	Entries          []LogEntry
	SendingSnapshot  bool
	KeepAlive        bool
}

// AppendLogResponse is a follower's reply to AppendLogRequest.
type AppendLogResponse struct {
	ErrorCode      int32
	CurrentTerm    int64
	Leader         HostAddr
	CommittedLogID int64
	LastLogID      int64
	LastLogTerm    int64
}

// SendSnapshotRequest is one frame of a bulk state transfer.
type SendSnapshotRequest struct {
	Space            int64
	Part             int64
	Leader           HostAddr
	Term             int64
	Rows             [][]byte
	CommittedLogID   int64
	CommittedLogTerm int64
	TotalCount       int64
	TotalSize        int64
	Done             bool
}

// SendSnapshotResponse is a follower's reply to one snapshot frame.
type SendSnapshotResponse struct {
	ErrorCode int32
}

// HostAddr mirrors raftpart.HostAddr without importing the root
// package (internal packages stay below the root package in the
// dependency order; the root package converts at the boundary).
type HostAddr struct {
	Host string
	Port int32
}
