package quicrpc

import (
	raftpart "github.com/nebula-raftex/raftpart"
	"github.com/nebula-raftex/raftpart/internal/wire"
)

func toWireHostAddr(a raftpart.HostAddr) wire.HostAddr {
	return wire.HostAddr{Host: a.Host, Port: int32(a.Port)}
}

func fromWireHostAddr(a wire.HostAddr) raftpart.HostAddr {
	return raftpart.HostAddr{Host: a.Host, Port: int(a.Port)}
}

func toWireLogEntry(e raftpart.LogEntry) wire.LogEntry {
	return wire.LogEntry{LogID: e.LogID, Term: e.Term, Cluster: e.Cluster, Type: int32(e.Type), Payload: e.Payload}
}

func fromWireLogEntry(e wire.LogEntry) raftpart.LogEntry {
	return raftpart.LogEntry{LogID: e.LogID, Term: e.Term, Cluster: e.Cluster, Type: raftpart.LogType(e.Type), Payload: e.Payload}
}

func toWireAskForVoteRequest(r *raftpart.AskForVoteRequest) wire.AskForVoteRequest {
	return wire.AskForVoteRequest{
		Space: r.Space, Part: r.Part, Candidate: toWireHostAddr(r.Candidate),
		Term: r.Term, LastLogID: r.LastLogID, LastLogTerm: r.LastLogTerm,
	}
}

func fromWireAskForVoteRequest(r wire.AskForVoteRequest) *raftpart.AskForVoteRequest {
	return &raftpart.AskForVoteRequest{
		Space: r.Space, Part: r.Part, Candidate: fromWireHostAddr(r.Candidate),
		Term: r.Term, LastLogID: r.LastLogID, LastLogTerm: r.LastLogTerm,
	}
}

func toWireAskForVoteResponse(r *raftpart.AskForVoteResponse) wire.AskForVoteResponse {
	return wire.AskForVoteResponse{ErrorCode: int32(r.ErrorCode), CurrentTerm: r.CurrentTerm}
}

func fromWireAskForVoteResponse(r wire.AskForVoteResponse) raftpart.AskForVoteResponse {
	return raftpart.AskForVoteResponse{ErrorCode: raftpart.ErrorCode(r.ErrorCode), CurrentTerm: r.CurrentTerm}
}

func toWireAppendLogRequest(r *raftpart.AppendLogRequest) wire.AppendLogRequest {
	entries := make([]wire.LogEntry, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = toWireLogEntry(e)
	}
	return wire.AppendLogRequest{
		Space: r.Space, Part: r.Part, Leader: toWireHostAddr(r.Leader), CurrentTerm: r.CurrentTerm,
		LastLogID: r.LastLogID, CommittedLogID: r.CommittedLogID, LastLogIDSent: r.LastLogIDSent,
		LastLogTermSent: r.LastLogTermSent, LogTerm: r.LogTerm, Entries: entries,
		SendingSnapshot: r.SendingSnapshot, KeepAlive: r.KeepAlive,
	}
}

func fromWireAppendLogRequest(r wire.AppendLogRequest) *raftpart.AppendLogRequest {
	entries := make([]raftpart.LogEntry, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = fromWireLogEntry(e)
	}
	return &raftpart.AppendLogRequest{
		Space: r.Space, Part: r.Part, Leader: fromWireHostAddr(r.Leader), CurrentTerm: r.CurrentTerm,
		LastLogID: r.LastLogID, CommittedLogID: r.CommittedLogID, LastLogIDSent: r.LastLogIDSent,
		LastLogTermSent: r.LastLogTermSent, LogTerm: r.LogTerm, Entries: entries,
		SendingSnapshot: r.SendingSnapshot, KeepAlive: r.KeepAlive,
	}
}

func toWireAppendLogResponse(r *raftpart.AppendLogResponse) wire.AppendLogResponse {
	return wire.AppendLogResponse{
		ErrorCode: int32(r.ErrorCode), CurrentTerm: r.CurrentTerm, Leader: toWireHostAddr(r.Leader),
		CommittedLogID: r.CommittedLogID, LastLogID: r.LastLogID, LastLogTerm: r.LastLogTerm,
	}
}

func fromWireAppendLogResponse(r wire.AppendLogResponse) raftpart.AppendLogResponse {
	return raftpart.AppendLogResponse{
		ErrorCode: raftpart.ErrorCode(r.ErrorCode), CurrentTerm: r.CurrentTerm, Leader: fromWireHostAddr(r.Leader),
		CommittedLogID: r.CommittedLogID, LastLogID: r.LastLogID, LastLogTerm: r.LastLogTerm,
	}
}

func toWireSendSnapshotRequest(r *raftpart.SendSnapshotRequest) wire.SendSnapshotRequest {
	return wire.SendSnapshotRequest{
		Space: r.Space, Part: r.Part, Leader: toWireHostAddr(r.Leader), Term: r.Term, Rows: r.Rows,
		CommittedLogID: r.CommittedLogID, CommittedLogTerm: r.CommittedLogTerm,
		TotalCount: r.TotalCount, TotalSize: r.TotalSize, Done: r.Done,
	}
}

func fromWireSendSnapshotRequest(r wire.SendSnapshotRequest) *raftpart.SendSnapshotRequest {
	return &raftpart.SendSnapshotRequest{
		Space: r.Space, Part: r.Part, Leader: fromWireHostAddr(r.Leader), Term: r.Term, Rows: r.Rows,
		CommittedLogID: r.CommittedLogID, CommittedLogTerm: r.CommittedLogTerm,
		TotalCount: r.TotalCount, TotalSize: r.TotalSize, Done: r.Done,
	}
}

func toWireSendSnapshotResponse(r *raftpart.SendSnapshotResponse) wire.SendSnapshotResponse {
	return wire.SendSnapshotResponse{ErrorCode: int32(r.ErrorCode)}
}
