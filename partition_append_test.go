package raftpart

import "testing"

func TestHandleAppendLogRejectsUnknownLeader(t *testing.T) {
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	leader := HostAddr{Host: "127.0.0.1", Port: 9701}
	p := newFollowerPartition(t, self)

	resp := p.HandleAppendLog(&AppendLogRequest{Leader: leader, CurrentTerm: 1})
	if resp.ErrorCode != ErrWrongLeader {
		t.Fatalf("expected ErrWrongLeader from an unknown leader, got %v", resp.ErrorCode)
	}
}

func TestHandleAppendLogRejectsStaleTerm(t *testing.T) {
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	leader := HostAddr{Host: "127.0.0.1", Port: 9701}
	p := newFollowerPartition(t, self)
	p.AddPeer(leader, false)
	p.partitionLock.Lock()
	p.term = 5
	p.partitionLock.Unlock()

	resp := p.HandleAppendLog(&AppendLogRequest{Leader: leader, CurrentTerm: 4})
	if resp.ErrorCode != ErrTermOutOfDate {
		t.Fatalf("expected ErrTermOutOfDate for a stale leader term, got %v", resp.ErrorCode)
	}
}

func TestHandleAppendLogAppendsAndAdvancesCommit(t *testing.T) {
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	leader := HostAddr{Host: "127.0.0.1", Port: 9701}
	host := &fakeHost{}
	p := newFollowerPartition(t, self)
	p.host = host
	p.AddPeer(leader, false)

	resp := p.HandleAppendLog(&AppendLogRequest{
		Leader: leader, CurrentTerm: 1,
		LastLogIDSent: 0, LastLogTermSent: 0, CommittedLogID: 2,
		Entries: []LogEntry{
			{LogID: 1, Term: 1, Cluster: 1, Type: LogNormal, Payload: []byte("a")},
			{LogID: 2, Term: 1, Cluster: 1, Type: LogNormal, Payload: []byte("b")},
		},
	})
	if resp.ErrorCode != Succeeded {
		t.Fatalf("expected the append accepted, got %v", resp.ErrorCode)
	}
	if resp.LastLogID != 2 || resp.CommittedLogID != 2 {
		t.Fatalf("expected lastLogID=2 committedLogID=2, got %+v", resp)
	}
	if got := host.Committed(); len(got) != 2 || string(got[1].Payload) != "b" {
		t.Fatalf("expected both entries committed to the host, got %+v", got)
	}
	if p.wal.LastLogID() != 2 {
		t.Fatalf("expected the wal to hold both entries, got lastLogID=%d", p.wal.LastLogID())
	}
}

func TestHandleAppendLogDetectsGapWhenLeaderIsAhead(t *testing.T) {
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	leader := HostAddr{Host: "127.0.0.1", Port: 9701}
	p := newFollowerPartition(t, self)
	p.AddPeer(leader, false)

	resp := p.HandleAppendLog(&AppendLogRequest{
		Leader: leader, CurrentTerm: 1,
		LastLogIDSent: 5, LastLogTermSent: 1,
	})
	if resp.ErrorCode != ErrLogGap {
		t.Fatalf("expected ErrLogGap when the leader is ahead of an empty follower log, got %v", resp.ErrorCode)
	}
}

func TestHandleAppendLogKeepAliveFastPathFromAcceptedLeader(t *testing.T) {
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	leader := HostAddr{Host: "127.0.0.1", Port: 9701}
	p := newFollowerPartition(t, self)
	p.AddPeer(leader, false)

	first := p.HandleAppendLog(&AppendLogRequest{Leader: leader, CurrentTerm: 1, KeepAlive: true})
	if first.ErrorCode != Succeeded {
		t.Fatalf("expected the initial keepalive accepted, got %v", first.ErrorCode)
	}

	second := p.HandleAppendLog(&AppendLogRequest{Leader: leader, CurrentTerm: 1, KeepAlive: true})
	if second.ErrorCode != Succeeded {
		t.Fatalf("expected the follow-up keepalive fast path accepted, got %v", second.ErrorCode)
	}
}

func TestHandleAppendLogSnapshotHandoffPausesTheFollower(t *testing.T) {
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	leader := HostAddr{Host: "127.0.0.1", Port: 9701}
	p := newFollowerPartition(t, self)
	p.AddPeer(leader, false)

	resp := p.HandleAppendLog(&AppendLogRequest{Leader: leader, CurrentTerm: 1, SendingSnapshot: true})
	if resp.ErrorCode != ErrWaitingSnapshot {
		t.Fatalf("expected ErrWaitingSnapshot while a snapshot is inbound, got %v", resp.ErrorCode)
	}

	p.partitionLock.RLock()
	status := p.status
	p.partitionLock.RUnlock()
	if status != StatusWaitingSnapshot {
		t.Fatalf("expected status StatusWaitingSnapshot, got %v", status)
	}
}
