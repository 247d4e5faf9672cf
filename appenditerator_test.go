package raftpart

import "testing"

func newSub(typ LogType, payload string) clientSubmission {
	s := clientSubmission{Type: typ, Payload: []byte(payload)}
	s.fut = newSubmissionFuture()
	return s
}

func newAtomicSub(ok bool, payload string) clientSubmission {
	s := clientSubmission{Type: LogAtomicOp, Resolver: func() ([]byte, bool) {
		return []byte(payload), ok
	}}
	s.fut = newSubmissionFuture()
	return s
}

func TestAppendLogsIteratorNormalBatch(t *testing.T) {
	subs := []clientSubmission{newSub(LogNormal, "a"), newSub(LogNormal, "b")}
	it := newAppendLogsIterator(1, 5, 0, subs)

	if it.Empty() {
		t.Fatal("expected two produced entries")
	}
	entries := it.Entries()
	if len(entries) != 2 || entries[0].LogID != 1 || entries[1].LogID != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if !it.HasNonAtomicOpLogs() {
		t.Fatal("expected HasNonAtomicOpLogs")
	}
	if it.LeadByAtomicOp() {
		t.Fatal("did not expect LeadByAtomicOp")
	}
	if len(it.Remaining()) != 0 {
		t.Fatalf("expected no remaining submissions, got %v", it.Remaining())
	}
	if len(it.Consumed()) != 2 {
		t.Fatalf("expected both submissions consumed, got %v", it.Consumed())
	}
}

func TestAppendLogsIteratorCommandStopsFlight(t *testing.T) {
	subs := []clientSubmission{
		newSub(LogNormal, "a"),
		newSub(LogCommand, "cmd"),
		newSub(LogNormal, "trailing"),
	}
	it := newAppendLogsIterator(1, 1, 0, subs)

	entries := it.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected the COMMAND and its leading NORMAL in this flight, got %+v", entries)
	}
	if entries[1].Type != LogCommand {
		t.Fatalf("expected the COMMAND entry last, got %+v", entries[1])
	}
	remaining := it.Remaining()
	if len(remaining) != 1 || remaining[0].Type != LogNormal {
		t.Fatalf("expected the trailing NORMAL left for the next flight, got %v", remaining)
	}
	if len(it.Consumed()) != 2 {
		t.Fatalf("expected exactly the consumed prefix, got %v", it.Consumed())
	}
}

func TestAppendLogsIteratorAtomicOpAfterNormalStopsFlight(t *testing.T) {
	subs := []clientSubmission{
		newSub(LogNormal, "a"),
		newAtomicSub(true, "op"),
	}
	it := newAppendLogsIterator(1, 1, 0, subs)

	entries := it.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected only the leading NORMAL to be produced, got %+v", entries)
	}
	remaining := it.Remaining()
	if len(remaining) != 1 || remaining[0].Type != LogAtomicOp {
		t.Fatalf("expected the ATOMIC_OP deferred to the next flight, got %v", remaining)
	}
}

func TestAppendLogsIteratorFailedAtomicOpResolvesInlineAndIsSkipped(t *testing.T) {
	failing := newAtomicSub(false, "")
	subs := []clientSubmission{failing, newSub(LogNormal, "a")}
	it := newAppendLogsIterator(1, 1, 0, subs)

	entries := it.Entries()
	if len(entries) != 1 || entries[0].Type != LogNormal {
		t.Fatalf("expected only the NORMAL entry produced, got %+v", entries)
	}
	select {
	case err := <-failing.fut.done:
		if err == nil {
			t.Fatal("expected the failed atomic op's future to resolve with an error")
		}
	default:
		t.Fatal("expected the failed atomic op's future to already be resolved")
	}
	if len(it.Consumed()) != 2 {
		t.Fatalf("expected the failed op counted as consumed, got %v", it.Consumed())
	}
}

func TestAppendLogsIteratorLeadingAtomicOps(t *testing.T) {
	subs := []clientSubmission{newAtomicSub(true, "op1"), newAtomicSub(true, "op2"), newSub(LogNormal, "a")}
	it := newAppendLogsIterator(10, 2, 0, subs)

	entries := it.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected both atomic ops and the trailing normal in one flight, got %+v", entries)
	}
	if !it.LeadByAtomicOp() {
		t.Fatal("expected LeadByAtomicOp")
	}
	if !it.HasNonAtomicOpLogs() {
		t.Fatal("expected HasNonAtomicOpLogs once the NORMAL entry is produced")
	}
	if entries[0].LogID != 10 || entries[2].LogID != 12 {
		t.Fatalf("expected contiguous log IDs starting at firstLogID, got %+v", entries)
	}
}
