package raftpart

import (
	"errors"
	"testing"
)

func TestSubmissionFutureResolveOnce(t *testing.T) {
	f := newSubmissionFuture()
	first := errors.New("first")
	second := errors.New("second")

	f.resolve(first)
	f.resolve(second)

	if got := f.Wait(); got != first {
		t.Fatalf("expected the first resolve to win, got %v", got)
	}
}

func TestGroupFromBucketsByType(t *testing.T) {
	normal := newSub(LogNormal, "a")
	command := newSub(LogCommand, "cmd")
	atomic := newAtomicSub(true, "op")

	g := groupFrom([]clientSubmission{normal, command, atomic})
	if len(g.shared) != 2 {
		t.Fatalf("expected NORMAL and COMMAND in the shared sink, got %d", len(g.shared))
	}
	if len(g.single) != 1 {
		t.Fatalf("expected the ATOMIC_OP in the single sink, got %d", len(g.single))
	}
}

func TestGroupFromOnlyResolvesGivenSubmissions(t *testing.T) {
	consumed := newSub(LogNormal, "a")
	leftBehind := newSub(LogNormal, "b")

	// Mirrors what replicateNow does: build a group from only the
	// iterator's Consumed() prefix, never the whole drained batch.
	g := groupFrom([]clientSubmission{consumed})
	g.resolveShared(nil)

	select {
	case err := <-consumed.fut.done:
		if err != nil {
			t.Fatalf("expected consumed submission to resolve successfully, got %v", err)
		}
	default:
		t.Fatal("expected the consumed submission's future to be resolved")
	}

	select {
	case <-leftBehind.fut.done:
		t.Fatal("a submission left out of the group must not be resolved")
	default:
	}
}

func TestPromiseGroupResolveAll(t *testing.T) {
	shared := newSub(LogNormal, "a")
	atomic := newAtomicSub(true, "op")
	g := groupFrom([]clientSubmission{shared, atomic})

	want := newRaftError(ErrNotALeader, nil)
	g.resolveAll(want)

	if err := shared.fut.Wait(); !errors.Is(err, ErrNotALeader) {
		t.Fatalf("expected shared future resolved with %v, got %v", ErrNotALeader, err)
	}
	if err := atomic.fut.Wait(); !errors.Is(err, ErrNotALeader) {
		t.Fatalf("expected single future resolved with %v, got %v", ErrNotALeader, err)
	}
}
