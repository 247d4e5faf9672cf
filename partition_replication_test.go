package raftpart

import (
	"testing"
	"time"

	"github.com/nebula-raftex/raftpart/internal/walstore"
)

func newLeaderPartition(t *testing.T, host Host) *Partition {
	t.Helper()
	wal, err := walstore.Open(t.TempDir(), walstore.Options{}, nil)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	self := HostAddr{Host: "127.0.0.1", Port: 9700}
	p := NewPartition(1, 1, self, NewConfig(), Deps{Host: host, Transport: noopTransport{}, WAL: wal})
	p.partitionLock.Lock()
	p.role = RoleLeader
	p.status = StatusRunning
	p.term = 1
	p.partitionLock.Unlock()
	return p
}

func waitFuture(t *testing.T, fut *submissionFuture) error {
	t.Helper()
	select {
	case err := <-fut.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("future never resolved")
		return nil
	}
}

func TestAppendAsyncSingleNodeCommits(t *testing.T) {
	host := &fakeHost{}
	p := newLeaderPartition(t, host)

	fut := p.AppendAsync([]byte("hello"))
	if err := waitFuture(t, fut); err != nil {
		t.Fatalf("expected single-node commit to succeed, got %v", err)
	}

	committed := host.Committed()
	if len(committed) != 1 || string(committed[0].Payload) != "hello" {
		t.Fatalf("expected one committed entry with payload hello, got %+v", committed)
	}
	if p.CommittedLogID() != 1 {
		t.Fatalf("expected committedLogID=1, got %d", p.CommittedLogID())
	}
}

func TestCommandDoesNotPrematurelyResolveTrailingSubmission(t *testing.T) {
	// Regression test for the promise-group bug: a COMMAND ends its
	// flight (appendLogsIterator rule 2), so a NORMAL submitted in the
	// same buffer drain as the COMMAND must not resolve until its own,
	// later flight actually replicates it.
	host := &fakeHost{}
	p := newLeaderPartition(t, host)

	// Fill the buffer directly so both submissions land in the same
	// DrainAll() batch, the scenario the bug depended on.
	trailing := newSubmissionFuture()
	trailingSub := clientSubmission{Type: LogNormal, Payload: []byte("trailing"), fut: trailing}
	cmdFut := newSubmissionFuture()
	cmdSub := clientSubmission{Type: LogCommand, Payload: EncodeMembershipCommand(MembershipCommand{Op: MembershipAddPeer, Peer: HostAddr{Host: "127.0.0.1", Port: 9701}, Learner: true}), fut: cmdFut}

	p.logsLock.Lock()
	p.buffer.Push(cmdSub)
	p.buffer.Push(trailingSub)
	p.sending = true
	p.logsLock.Unlock()

	done := make(chan struct{})
	go func() {
		p.replicateNow()
		close(done)
	}()

	if err := waitFuture(t, cmdFut); err != nil {
		t.Fatalf("expected the COMMAND to commit, got %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replicateNow never finished draining the buffer")
	}

	if err := waitFuture(t, trailing); err != nil {
		t.Fatalf("expected the trailing NORMAL to eventually commit too, got %v", err)
	}

	committed := host.Committed()
	if len(committed) != 2 {
		t.Fatalf("expected both entries committed across two flights, got %+v", committed)
	}
	if committed[0].Type != LogCommand || committed[1].Type != LogNormal {
		t.Fatalf("expected COMMAND committed before the trailing NORMAL, got %+v", committed)
	}
}

func TestAbortFlightResolvesEverythingBuffered(t *testing.T) {
	host := &fakeHost{}
	p := newLeaderPartition(t, host)

	fut := newSubmissionFuture()
	p.logsLock.Lock()
	p.buffer.Push(clientSubmission{Type: LogNormal, Payload: []byte("x"), fut: fut})
	p.logsLock.Unlock()

	// Step down before the flight runs: replicateNow's canAppend check
	// must fail and abort everything currently buffered.
	p.partitionLock.Lock()
	p.role = RoleFollower
	p.partitionLock.Unlock()

	p.replicateNow()

	if err := waitFuture(t, fut); err == nil {
		t.Fatal("expected the buffered submission to fail once leadership is lost")
	}
}
