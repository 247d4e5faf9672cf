package wire

import (
	"reflect"
	"testing"
)

func TestLogEntryRoundTrip(t *testing.T) {
	want := LogEntry{LogID: 7, Term: 2, Cluster: 9, Type: 1, Payload: []byte("payload")}
	got, err := UnmarshalLogEntry(MarshalLogEntry(want))
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestAskForVoteRoundTrip(t *testing.T) {
	req := AskForVoteRequest{
		Space: 1, Part: 2, Candidate: HostAddr{Host: "10.0.0.1", Port: 9700},
		Term: 5, LastLogID: 100, LastLogTerm: 4,
	}
	gotReq, err := UnmarshalAskForVoteRequest(MarshalAskForVoteRequest(req))
	if err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if !reflect.DeepEqual(gotReq, req) {
		t.Fatalf("request round trip mismatch: got %+v, want %+v", gotReq, req)
	}

	resp := AskForVoteResponse{ErrorCode: 3, CurrentTerm: 5}
	gotResp, err := UnmarshalAskForVoteResponse(MarshalAskForVoteResponse(resp))
	if err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if gotResp != resp {
		t.Fatalf("response round trip mismatch: got %+v, want %+v", gotResp, resp)
	}
}

func TestAppendLogRoundTripWithEntries(t *testing.T) {
	req := AppendLogRequest{
		Space: 1, Part: 2, Leader: HostAddr{Host: "10.0.0.1", Port: 9700},
		CurrentTerm: 4, LastLogID: 12, CommittedLogID: 10,
		LastLogIDSent: 9, LastLogTermSent: 3, LogTerm: 4,
		Entries: []LogEntry{
			{LogID: 10, Term: 4, Cluster: 1, Type: 0, Payload: []byte("a")},
			{LogID: 11, Term: 4, Cluster: 1, Type: 2, Payload: []byte("b")},
		},
		SendingSnapshot: false, KeepAlive: false,
	}
	got, err := UnmarshalAppendLogRequest(MarshalAppendLogRequest(req))
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestAppendLogRequestEmptyEntriesIsHeartbeat(t *testing.T) {
	req := AppendLogRequest{Space: 1, Part: 1, KeepAlive: true}
	got, err := UnmarshalAppendLogRequest(MarshalAppendLogRequest(req))
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Fatalf("expected no entries for a heartbeat, got %+v", got.Entries)
	}
	if !got.KeepAlive {
		t.Fatal("expected KeepAlive preserved through the round trip")
	}
}

func TestAppendLogResponseRoundTrip(t *testing.T) {
	resp := AppendLogResponse{
		ErrorCode: 2, CurrentTerm: 7, Leader: HostAddr{Host: "10.0.0.2", Port: 9701},
		CommittedLogID: 5, LastLogID: 6, LastLogTerm: 3,
	}
	got, err := UnmarshalAppendLogResponse(MarshalAppendLogResponse(resp))
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, resp) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, resp)
	}
}

func TestSendSnapshotRoundTrip(t *testing.T) {
	req := SendSnapshotRequest{
		Space: 1, Part: 1, Leader: HostAddr{Host: "10.0.0.1", Port: 9700}, Term: 2,
		Rows: [][]byte{[]byte("row1"), []byte("row2")},
		CommittedLogID: 20, CommittedLogTerm: 2, TotalCount: 2, TotalSize: 8, Done: true,
	}
	got, err := UnmarshalSendSnapshotRequest(MarshalSendSnapshotRequest(req))
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}

	resp := SendSnapshotResponse{ErrorCode: 1}
	gotResp, err := UnmarshalSendSnapshotResponse(MarshalSendSnapshotResponse(resp))
	if err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if gotResp != resp {
		t.Fatalf("response round trip mismatch: got %+v, want %+v", gotResp, resp)
	}
}
