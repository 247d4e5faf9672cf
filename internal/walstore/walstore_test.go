package walstore

import (
	"testing"

	"github.com/nebula-raftex/raftpart/internal/wire"
)

func TestAppendAndIterate(t *testing.T) {
	s, err := Open(t.TempDir(), Options{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	entries := []wire.LogEntry{
		{LogID: 1, Term: 1, Payload: []byte("a")},
		{LogID: 2, Term: 1, Payload: []byte("b")},
		{LogID: 3, Term: 2, Payload: []byte("c")},
	}
	if err := s.Append(entries); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := s.LastLogID(); got != 3 {
		t.Fatalf("expected LastLogID=3, got %d", got)
	}
	if got := s.LastLogTerm(); got != 2 {
		t.Fatalf("expected LastLogTerm=2, got %d", got)
	}

	it, err := s.Iterator(1, 3)
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	var got []wire.LogEntry
	for it.Valid() {
		e, err := it.Entry()
		if err != nil {
			t.Fatalf("entry: %v", err)
		}
		got = append(got, e)
		it.Next()
	}
	if len(got) != 3 || string(got[2].Payload) != "c" {
		t.Fatalf("unexpected iteration result: %+v", got)
	}
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	s, err := Open(t.TempDir(), Options{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Append([]wire.LogEntry{{LogID: 2, Term: 1}}); err != ErrOutOfOrder {
		t.Fatalf("expected ErrOutOfOrder appending at LogID=2 on an empty log, got %v", err)
	}

	if err := s.Append([]wire.LogEntry{{LogID: 1, Term: 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append([]wire.LogEntry{{LogID: 3, Term: 1}}); err != ErrOutOfOrder {
		t.Fatalf("expected ErrOutOfOrder skipping LogID=2, got %v", err)
	}
}

func TestRollbackToLog(t *testing.T) {
	s, err := Open(t.TempDir(), Options{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.Append([]wire.LogEntry{
		{LogID: 1, Term: 1},
		{LogID: 2, Term: 1},
		{LogID: 3, Term: 2},
	})

	if err := s.RollbackToLog(1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := s.LastLogID(); got != 1 {
		t.Fatalf("expected LastLogID=1 after rollback, got %d", got)
	}
	if got := s.LastLogTerm(); got != 1 {
		t.Fatalf("expected LastLogTerm=1 after rollback, got %d", got)
	}
}

func TestOpenReplaysThroughPreProcess(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Append([]wire.LogEntry{{LogID: 1, Term: 1, Payload: []byte("x")}})
	s.Close()

	var replayed []wire.LogEntry
	s2, err := Open(dir, Options{}, func(e wire.LogEntry) bool {
		replayed = append(replayed, e)
		return true
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if len(replayed) != 1 || string(replayed[0].Payload) != "x" {
		t.Fatalf("expected the persisted entry replayed through preProcess, got %+v", replayed)
	}
	if got := s2.LastLogID(); got != 1 {
		t.Fatalf("expected LastLogID=1 after reopen, got %d", got)
	}
}

func TestReset(t *testing.T) {
	s, err := Open(t.TempDir(), Options{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.Append([]wire.LogEntry{{LogID: 1, Term: 1}, {LogID: 2, Term: 1}})
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.LastLogID() != 0 || s.LastLogTerm() != 0 {
		t.Fatalf("expected a clean log after Reset, got lastLogID=%d lastLogTerm=%d", s.LastLogID(), s.LastLogTerm())
	}
	if err := s.Append([]wire.LogEntry{{LogID: 1, Term: 1}}); err != nil {
		t.Fatalf("append after reset: %v", err)
	}
}
