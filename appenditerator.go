package raftpart

// clientSubmission is one item a client handed to AppendAsync,
// AtomicOpAsync, or SendCommandAsync, still waiting to be folded into
// a replication flight.
type clientSubmission struct {
	Type     LogType
	Payload  []byte
	Resolver func() ([]byte, bool) // ATOMIC_OP only
	fut      *submissionFuture
}

// appendLogsIterator is the Append Iterator (C4): a lazy, restartable
// cursor over a client-submitted batch. It is the single bridge
// between client submissions and the WAL/replication path, and it is
// what enforces "COMMAND alone" and "the atomic op's resolved payload
// is what gets persisted".
//
// Grounded on the original's AppendLogsIterator
// (RaftPart.cpp:50-170), generalized from a C++ LogIterator subclass
// into a small resumable Go struct with the same three rules.
type appendLogsIterator struct {
	firstLogID LogID
	term       Term
	cluster    ClusterID

	submissions []clientSubmission
	idx         int

	// leadByAtomicOp is true once at least one leading ATOMIC_OP has
	// been resolved into an entry by this iterator.
	leadByAtomicOp bool
	// hasNonAtomicOpLogs is true once any NORMAL or COMMAND entry has
	// been yielded.
	hasNonAtomicOpLogs bool
	// valid is false once the iterator has hit a boundary it cannot
	// cross within the current flight (a COMMAND was just yielded, or
	// the next submission is an ATOMIC_OP arriving after normal
	// entries already appeared).
	valid bool

	produced []LogEntry
	pos      int
}

// newAppendLogsIterator constructs an iterator over submissions
// starting at firstLogID/term, and immediately resolves it (see
// resume).
func newAppendLogsIterator(firstLogID LogID, term Term, cluster ClusterID, submissions []clientSubmission) *appendLogsIterator {
	it := &appendLogsIterator{
		firstLogID:  firstLogID,
		term:        term,
		cluster:     cluster,
		submissions: submissions,
	}
	it.resume()
	return it
}

// resume re-runs the iterator's three rules from its current position,
// producing entries until it hits a stopping boundary or exhausts the
// submission list.
func (it *appendLogsIterator) resume() {
	it.valid = true
	nextLogID := it.firstLogID + LogID(len(it.produced))

	for it.idx < len(it.submissions) {
		s := it.submissions[it.idx]

		if s.Type == LogAtomicOp {
			if it.hasNonAtomicOpLogs {
				// Rule 2: an ATOMIC_OP arriving after normal entries
				// ends this flight; leave it for the next iterator.
				it.valid = false
				return
			}
			it.idx++
			payload, ok := s.Resolver()
			if !ok {
				if s.fut != nil {
					s.fut.resolve(newRaftError(ErrAtomicOpFailure, nil))
				}
				continue
			}
			it.leadByAtomicOp = true
			it.produced = append(it.produced, LogEntry{
				LogID:   nextLogID,
				Term:    it.term,
				Cluster: it.cluster,
				Type:    LogAtomicOp,
				Payload: payload,
			})
			nextLogID++
			// Historically atomic ops resolve to exactly one entry per
			// submission; keep draining leading atomic ops.
			continue
		}

		// NORMAL or COMMAND.
		it.idx++
		it.hasNonAtomicOpLogs = true
		it.produced = append(it.produced, LogEntry{
			LogID:   nextLogID,
			Term:    it.term,
			Cluster: it.cluster,
			Type:    s.Type,
			Payload: s.Payload,
		})
		nextLogID++

		if s.Type == LogCommand {
			// Rule 2: COMMAND must be alone — nothing else may trail
			// it in this flight.
			it.valid = false
			return
		}
	}
}

// Empty reports whether the iterator produced zero entries.
func (it *appendLogsIterator) Empty() bool {
	return len(it.produced) == 0
}

// HasNonAtomicOpLogs reports whether any NORMAL/COMMAND entry has been
// yielded by this iterator.
func (it *appendLogsIterator) HasNonAtomicOpLogs() bool {
	return it.hasNonAtomicOpLogs
}

// LeadByAtomicOp reports whether this flight began with one or more
// resolved ATOMIC_OP entries.
func (it *appendLogsIterator) LeadByAtomicOp() bool {
	return it.leadByAtomicOp
}

// Entries returns every entry produced so far by this iterator.
func (it *appendLogsIterator) Entries() []LogEntry {
	return it.produced
}

// Remaining returns the client submissions still waiting behind this
// iterator's current position (replicateNow requeues a non-empty
// result so the next pass starts a fresh iterator over it).
func (it *appendLogsIterator) Remaining() []clientSubmission {
	return it.submissions[it.idx:]
}

// Consumed returns every submission this iterator has advanced past,
// whether it turned into a produced entry or was resolved inline as a
// failed ATOMIC_OP. Futures must only ever be resolved for this slice:
// submissions left in Remaining() haven't been persisted or replicated
// yet and belong to a later flight.
func (it *appendLogsIterator) Consumed() []clientSubmission {
	return it.submissions[:it.idx]
}
