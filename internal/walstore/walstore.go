// Package walstore is the WAL Adapter (C3): append/iterate/rollback/
// reset over the durable log, backed by github.com/tidwall/wal — the
// same segment-log library the teacher's internal/persister package
// wraps, generalized here from a single gob-encoded state blob to the
// full LogEntry stream.
package walstore

import (
	"errors"
	"sync"
	"time"

	"github.com/tidwall/wal"

	"github.com/nebula-raftex/raftpart/internal/wire"
)

// ErrOutOfOrder is returned by Append when the batch's first log ID
// does not immediately follow the current last log ID.
var ErrOutOfOrder = errors.New("walstore: batch does not start at lastLogID+1")

// PreProcessFunc is invoked for each entry recovered from disk at
// Open time, before Raft runs, so the host can react to persisted
// membership changes early (spec §4.3).
type PreProcessFunc func(e wire.LogEntry) bool

// Store is the C3 WAL Adapter.
type Store struct {
	mu  sync.RWMutex
	log *wal.Log

	lastLogID   int64
	lastLogTerm int64
	firstLogID  int64

	ttl        time.Duration
	ageMarkers []ageMarker
}

// ageMarker records the wall-clock time an Append call landed, keyed
// by the first log ID it wrote. Entries between one marker and the
// next all share that marker's age, so CompactExpired only ever needs
// to walk markers rather than every entry.
type ageMarker struct {
	logID int64
	atMs  int64
}

// Options mirrors the Config fields spec §6 enumerates for WAL
// durability.
type Options struct {
	FileSize    int
	BufferSize  int
	BufferCount int
	Fsync       bool

	// TTL is how long a persisted entry may sit below the replica's
	// committed point before CompactExpired is willing to drop it. Zero
	// disables compaction entirely.
	TTL time.Duration
}

// Open opens (or creates) the WAL rooted at dir and replays every
// persisted entry through preProcess, in order, before returning.
func Open(dir string, opts Options, preProcess PreProcessFunc) (*Store, error) {
	walOpts := &wal.Options{
		NoSync:           !opts.Fsync,
		SegmentSize:      opts.FileSize,
		LogFormat:        wal.Binary,
	}
	if walOpts.SegmentSize <= 0 {
		walOpts.SegmentSize = 16 << 20
	}

	l, err := wal.Open(dir, walOpts)
	if err != nil {
		return nil, err
	}

	s := &Store{log: l, ttl: opts.TTL}

	first, err := l.FirstIndex()
	if err != nil {
		return nil, err
	}
	last, err := l.LastIndex()
	if err != nil {
		return nil, err
	}
	s.firstLogID = int64(first)

	// An empty log reports first == last == 0; index 0 is never a valid
	// read, so the loop only runs once the log holds at least one entry.
	for i := first; last > 0 && i <= last; i++ {
		raw, err := l.Read(i)
		if err != nil {
			return nil, err
		}
		e, err := wire.UnmarshalLogEntry(raw)
		if err != nil {
			return nil, err
		}
		s.lastLogID = e.LogID
		s.lastLogTerm = e.Term
		if preProcess != nil && !preProcess(e) {
			// A pre-process rejection during recovery still leaves the
			// entry on disk — only live append/rollback mutate the log.
			continue
		}
	}

	return s, nil
}

// LastLogID returns the highest persisted log ID, or 0 if empty.
func (s *Store) LastLogID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLogID
}

// FirstLogID returns the lowest persisted log ID, or 0 if empty.
func (s *Store) FirstLogID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstLogID
}

// LastLogTerm returns the term of the highest persisted log entry.
func (s *Store) LastLogTerm() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLogTerm
}

// Append atomically appends a contiguous batch. The batch is rejected
// with ErrOutOfOrder if its first entry does not immediately follow
// the current last log ID.
func (s *Store) Append(entries []wire.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries[0].LogID != s.lastLogID+1 {
		return ErrOutOfOrder
	}

	batch := new(wal.Batch)
	for _, e := range entries {
		batch.Write(uint64(e.LogID), wire.MarshalLogEntry(e))
	}
	if err := s.log.WriteBatch(batch); err != nil {
		return err
	}

	last := entries[len(entries)-1]
	s.lastLogID = last.LogID
	s.lastLogTerm = last.Term
	if s.firstLogID == 0 {
		s.firstLogID = entries[0].LogID
	}
	s.ageMarkers = append(s.ageMarkers, ageMarker{logID: entries[0].LogID, atMs: time.Now().UnixMilli()})
	return nil
}

// CompactExpired drops the oldest persisted entries once they are both
// older than TTL and at or below committedLogID, mirroring the
// original's WAL retention sweep. Never removes anything above
// committedLogID, regardless of age. Returns the WAL's first log ID
// after compaction (unchanged if nothing was eligible).
func (s *Store) CompactExpired(committedLogID int64) (int64, error) {
	if s.ttl <= 0 {
		return s.FirstLogID(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastLogID == 0 {
		return s.firstLogID, nil
	}

	now := time.Now().UnixMilli()
	var cutoff int64
	for i, m := range s.ageMarkers {
		if now-m.atMs < s.ttl.Milliseconds() {
			break
		}
		upTo := s.lastLogID
		if i+1 < len(s.ageMarkers) {
			upTo = s.ageMarkers[i+1].logID - 1
		}
		if upTo > committedLogID {
			upTo = committedLogID
		}
		if upTo > cutoff {
			cutoff = upTo
		}
	}
	if cutoff < s.firstLogID {
		return s.firstLogID, nil
	}

	if err := s.log.TruncateFront(uint64(cutoff + 1)); err != nil {
		if errors.Is(err, wal.ErrOutOfRange) {
			return s.firstLogID, nil
		}
		return 0, err
	}
	s.firstLogID = cutoff + 1

	kept := s.ageMarkers[:0]
	for _, m := range s.ageMarkers {
		if m.logID >= s.firstLogID {
			kept = append(kept, m)
		}
	}
	s.ageMarkers = kept

	return s.firstLogID, nil
}

// Iterator returns an inclusive [from, to] range iterator used for
// commit and replication.
func (s *Store) Iterator(from, to int64) (*Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < s.firstLogID {
		return nil, errors.New("walstore: range starts before WAL's first log id")
	}
	if to > s.lastLogID {
		to = s.lastLogID
	}
	return &Iterator{store: s, cur: from, end: to}, nil
}

// RollbackToLog truncates the log to and including id, updating
// lastLogID/lastLogTerm to match.
func (s *Store) RollbackToLog(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < s.firstLogID-1 {
		return errors.New("walstore: rollback target before WAL start")
	}
	if err := s.log.TruncateBack(uint64(id)); err != nil {
		if !errors.Is(err, wal.ErrOutOfRange) {
			return err
		}
	}
	s.ageMarkers = dropMarkersAfter(s.ageMarkers, id)
	if id < s.firstLogID {
		s.lastLogID, s.lastLogTerm = 0, 0
		return nil
	}
	raw, err := s.log.Read(uint64(id))
	if err != nil {
		return err
	}
	e, err := wire.UnmarshalLogEntry(raw)
	if err != nil {
		return err
	}
	s.lastLogID, s.lastLogTerm = e.LogID, e.Term
	return nil
}

// dropMarkersAfter keeps only the age markers whose batch still starts
// at or before id, for RollbackToLog truncating away newer ones.
func dropMarkersAfter(markers []ageMarker, id int64) []ageMarker {
	kept := markers[:0]
	for _, m := range markers {
		if m.logID <= id {
			kept = append(kept, m)
		}
	}
	return kept
}

// Reset discards all entries, used after snapshot install or on
// divergence that can't be reconciled by rollback alone.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.log.LastIndex()
	if err != nil {
		return err
	}
	if last > 0 {
		if err := s.log.TruncateBack(0); err != nil && !errors.Is(err, wal.ErrOutOfRange) {
			return err
		}
	}
	s.lastLogID, s.lastLogTerm, s.firstLogID = 0, 0, 0
	s.ageMarkers = nil
	return nil
}

// Close closes the underlying segment files.
func (s *Store) Close() error {
	return s.log.Close()
}

// Iterator is an inclusive [from, to] cursor over persisted entries.
type Iterator struct {
	store *Store
	cur   int64
	end   int64
	cache wire.LogEntry
	err   error
}

// Valid reports whether the iterator currently points at an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.cur <= it.end
}

// Entry returns the entry at the current position. Call Next to
// advance.
func (it *Iterator) Entry() (wire.LogEntry, error) {
	it.store.mu.RLock()
	defer it.store.mu.RUnlock()
	raw, err := it.store.log.Read(uint64(it.cur))
	if err != nil {
		it.err = err
		return wire.LogEntry{}, err
	}
	e, err := wire.UnmarshalLogEntry(raw)
	if err != nil {
		it.err = err
	}
	return e, err
}

// Next advances the cursor by one.
func (it *Iterator) Next() {
	it.cur++
}

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error { return it.err }
