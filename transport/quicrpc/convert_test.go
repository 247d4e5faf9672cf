package quicrpc

import (
	"testing"

	raftpart "github.com/nebula-raftex/raftpart"
)

func TestHostAddrPortConversion(t *testing.T) {
	a := raftpart.HostAddr{Host: "10.0.0.1", Port: 9700}
	w := toWireHostAddr(a)
	if w.Port != 9700 {
		t.Fatalf("expected Port preserved as int32, got %d", w.Port)
	}
	back := fromWireHostAddr(w)
	if back != a {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, a)
	}
}

func TestAppendLogRequestConversionRoundTrip(t *testing.T) {
	req := &raftpart.AppendLogRequest{
		Space: 1, Part: 2, Leader: raftpart.HostAddr{Host: "10.0.0.1", Port: 9700},
		CurrentTerm: 3, LastLogID: 10, CommittedLogID: 8,
		LastLogIDSent: 7, LastLogTermSent: 2, LogTerm: 3,
		Entries: []raftpart.LogEntry{
			{LogID: 8, Term: 3, Cluster: 1, Type: raftpart.LogNormal, Payload: []byte("a")},
		},
	}
	wireReq := toWireAppendLogRequest(req)
	got := fromWireAppendLogRequest(wireReq)

	if got.LastLogID != req.LastLogID || got.Leader != req.Leader || len(got.Entries) != 1 {
		t.Fatalf("conversion round trip mismatch: got %+v", got)
	}
	if got.Entries[0].Type != raftpart.LogNormal || string(got.Entries[0].Payload) != "a" {
		t.Fatalf("entry conversion mismatch: got %+v", got.Entries[0])
	}
}

func TestAppendLogResponseConversionRoundTrip(t *testing.T) {
	resp := &raftpart.AppendLogResponse{
		ErrorCode: raftpart.ErrLogGap, CurrentTerm: 5,
		Leader: raftpart.HostAddr{Host: "10.0.0.2", Port: 9701},
		CommittedLogID: 4, LastLogID: 5, LastLogTerm: 4,
	}
	got := fromWireAppendLogResponse(toWireAppendLogResponse(resp))
	if got.ErrorCode != resp.ErrorCode || got.Leader != resp.Leader {
		t.Fatalf("response conversion mismatch: got %+v, want %+v", got, resp)
	}
}

func TestAskForVoteConversionRoundTrip(t *testing.T) {
	req := &raftpart.AskForVoteRequest{
		Space: 1, Part: 1, Candidate: raftpart.HostAddr{Host: "10.0.0.3", Port: 9702},
		Term: 6, LastLogID: 20, LastLogTerm: 5,
	}
	got := fromWireAskForVoteRequest(toWireAskForVoteRequest(req))
	if *got != *req {
		t.Fatalf("request conversion mismatch: got %+v, want %+v", got, req)
	}

	resp := &raftpart.AskForVoteResponse{ErrorCode: raftpart.ErrTermOutOfDate, CurrentTerm: 6}
	gotResp := fromWireAskForVoteResponse(toWireAskForVoteResponse(resp))
	if gotResp != *resp {
		t.Fatalf("response conversion mismatch: got %+v, want %+v", gotResp, resp)
	}
}
