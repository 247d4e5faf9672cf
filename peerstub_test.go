package raftpart

import (
	"context"
	"testing"
	"time"
)

// scriptedTransport answers AppendLog with whatever is queued in resp,
// optionally blocking on gate until the test releases it.
type scriptedTransport struct {
	noopTransport
	resp *AppendLogResponse
	gate chan struct{}
}

func (s *scriptedTransport) AppendLog(ctx context.Context, to HostAddr, req *AppendLogRequest) (*AppendLogResponse, error) {
	if s.gate != nil {
		<-s.gate
	}
	return s.resp, nil
}

func TestHostStubAppendLogsSucceedsAdvancesCursor(t *testing.T) {
	addr := HostAddr{Host: "127.0.0.1", Port: 9701}
	tr := &scriptedTransport{resp: &AppendLogResponse{ErrorCode: Succeeded}}
	stub := newHostStub(addr, tr, false, nil)
	stub.Reset(0)

	fut := stub.AppendLogs(context.Background(), &AppendLogRequest{
		Entries: []LogEntry{{LogID: 1}, {LogID: 2}},
	})
	res := fut.Wait()
	if res.err != nil || res.resp.ErrorCode != Succeeded {
		t.Fatalf("expected a successful append result, got %+v", res)
	}

	next, match, state, _ := stub.snapshot()
	if match != 2 || next != 3 {
		t.Fatalf("expected matchIndex=2 nextIndex=3, got match=%d next=%d", match, next)
	}
	if state != peerOK {
		t.Fatalf("expected state peerOK, got %v", state)
	}
}

func TestHostStubRejectsSecondInFlightCall(t *testing.T) {
	addr := HostAddr{Host: "127.0.0.1", Port: 9701}
	gate := make(chan struct{})
	tr := &scriptedTransport{resp: &AppendLogResponse{ErrorCode: Succeeded}, gate: gate}
	stub := newHostStub(addr, tr, false, nil)

	first := stub.AppendLogs(context.Background(), &AppendLogRequest{})
	second := stub.AppendLogs(context.Background(), &AppendLogRequest{})
	res := second.Wait()
	if res.err != ErrHostBusy {
		t.Fatalf("expected ErrHostBusy for a concurrent call, got %v", res.err)
	}

	close(gate)
	first.Wait()
	stub.WaitForStop()
}

func TestHostStubLogGapDecrementsNextIndex(t *testing.T) {
	addr := HostAddr{Host: "127.0.0.1", Port: 9701}
	tr := &scriptedTransport{resp: &AppendLogResponse{ErrorCode: ErrLogGap}}
	stub := newHostStub(addr, tr, false, nil)
	stub.Reset(10)

	fut := stub.AppendLogs(context.Background(), &AppendLogRequest{LastLogIDSent: 10})
	fut.Wait()

	next, _, state, _ := stub.snapshot()
	if next != 10 {
		t.Fatalf("expected nextIndex decremented to 10, got %d", next)
	}
	if state != peerGapRetry {
		t.Fatalf("expected state peerGapRetry, got %v", state)
	}
}

func TestHostStubWaitingSnapshotTriggersCallback(t *testing.T) {
	addr := HostAddr{Host: "127.0.0.1", Port: 9701}
	tr := &scriptedTransport{resp: &AppendLogResponse{ErrorCode: ErrWaitingSnapshot}}
	stub := newHostStub(addr, tr, false, nil)

	notified := make(chan HostAddr, 1)
	stub.onNeedsSnapshot = func(a HostAddr) { notified <- a }

	fut := stub.AppendLogs(context.Background(), &AppendLogRequest{})
	fut.Wait()

	select {
	case got := <-notified:
		if got != addr {
			t.Fatalf("expected onNeedsSnapshot called with %v, got %v", addr, got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected onNeedsSnapshot to fire for ErrWaitingSnapshot")
	}

	_, _, state, sending := stub.snapshot()
	if state != peerSnapshot || !sending {
		t.Fatalf("expected state peerSnapshot with sendingSnapshot=true, got state=%v sending=%v", state, sending)
	}
}
