package raftpart

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/nebula-raftex/raftpart/internal/submitqueue"
	"github.com/nebula-raftex/raftpart/internal/walstore"
	"github.com/nebula-raftex/raftpart/internal/wire"
)

// Partition is the Raft Partition core (C6): one replicated log, one
// role/status state machine, one set of peers. It owns the WAL
// Adapter, the Peer Directory, and one hostStub per peer, and exposes
// the client submission entry points (AppendAsync, AtomicOpAsync,
// SendCommandAsync) plus the inbound RPC handlers (HandleAppendLog,
// HandleAskForVote, HandleSendSnapshot) that a Transport binding calls
// into.
//
// Concurrency follows spec §5's two-lock order: logsLock is always
// acquired before partitionLock, never the reverse; the peer
// directory's own lock is only ever taken while holding partitionLock
// or neither.
type Partition struct {
	space SpaceID
	part  PartitionID
	self  HostAddr
	cfg   Config

	log       hclog.Logger
	clock     Clock
	scheduler Scheduler
	io        *ioPool

	host      Host
	transport Transport
	wal       *walstore.Store
	peers     *PeerDirectory

	logsLock sync.Mutex
	buffer   *submitqueue.Queue[clientSubmission]
	sending  bool // true while a flight is in progress

	partitionLock  sync.RWMutex
	role           Role
	status         Status
	term           Term
	votedFor       HostAddr
	leader         HostAddr
	committedLogID LogID
	writeBlocking  bool

	stubs map[HostAddr]*hostStub

	snapshotSource  SnapshotSource
	snapshotTimer   Timer
	transferring    map[HostAddr]bool

	electionTimer  Timer
	heartbeatTimer Timer
	syncTimer      Timer
	ttlTimer       Timer

	// peerLastContactMs tracks, per voter/learner, the clock reading of
	// the last AppendLogs/KeepAlive dispatch — read by onSyncTick to
	// decide which peers are due for a sync-with-follower ping.
	peerLastContactMs map[HostAddr]int64

	lastMsgAcceptedTimeMs int64
	weight                int

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// Deps bundles everything a Partition needs that isn't pure
// configuration, so construction reads as one call instead of a long
// positional parameter list.
type Deps struct {
	Host      Host
	Transport Transport
	WAL       *walstore.Store
	Logger    hclog.Logger
	Clock     Clock
	Scheduler Scheduler
	// Snapshot optionally supplies bulk state for peers that fall too
	// far behind to catch up via the log. Snapshot production is
	// external per spec.md §1; leaving this nil means
	// startSnapshotTransfer returns at once without sending or logging
	// anything, so a peer whose stub is waiting for a snapshot is never
	// sent one.
	Snapshot SnapshotSource
}

// NewPartition constructs a Partition for (space, part) at self,
// starting as a Follower with no peers. Callers add peers with
// AddPeer before calling Start (or submit them as COMMAND entries
// once running, for a live membership change).
func NewPartition(space SpaceID, part PartitionID, self HostAddr, cfg Config, deps Deps) *Partition {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	clock := deps.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler()
	}

	p := &Partition{
		space:     space,
		part:      part,
		self:      self,
		cfg:       cfg,
		log:       logger.Named("raftpart").With("space", space, "part", part, "self", self.String()),
		clock:     clock,
		scheduler: scheduler,
		io:        newIOPool(64),
		host:      deps.Host,
		transport: deps.Transport,
		wal:       deps.WAL,
		peers:     NewPeerDirectory(),
		buffer:    submitqueue.New[clientSubmission](cfg.MaxBatchSize * 4),
		stubs:     make(map[HostAddr]*hostStub),
		snapshotSource: deps.Snapshot,
		transferring:   make(map[HostAddr]bool),
		peerLastContactMs: make(map[HostAddr]int64),
		role:      RoleFollower,
		status:    StatusStarting,
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
		weight:    1,
	}
	if deps.WAL != nil {
		p.committedLogID = deps.WAL.LastLogID()
		p.replayMembership()
	}
	return p
}

// AddPeer registers addr as a voter or learner and starts its
// hostStub. Call before Start, or while running to enact a membership
// change already committed via SendCommandAsync.
func (p *Partition) AddPeer(addr HostAddr, learner bool) {
	if addr == p.self {
		return
	}
	if p.peers.Add(addr, learner) {
		stub := newHostStub(addr, p.transport, learner, p.wal)
		stub.onNeedsSnapshot = p.startSnapshotTransfer
		p.partitionLock.Lock()
		p.stubs[addr] = stub
		p.partitionLock.Unlock()
	}
}

// RemovePeer drops addr and stops its hostStub.
func (p *Partition) RemovePeer(addr HostAddr) {
	if p.peers.Remove(addr) {
		p.partitionLock.Lock()
		stub := p.stubs[addr]
		delete(p.stubs, addr)
		p.partitionLock.Unlock()
		if stub != nil {
			stub.Stop()
		}
	}
}

// Start begins the election/heartbeat timers and transitions the
// partition out of StatusStarting. It replays nothing itself — the
// WAL Adapter's Open already replayed persisted entries through the
// Host's PreProcessLog hook before NewPartition was ever called.
func (p *Partition) Start(ctx context.Context) {
	p.partitionLock.Lock()
	p.status = StatusRunning
	p.lastMsgAcceptedTimeMs = p.clock.NowMillis()
	p.partitionLock.Unlock()

	p.resetElectionTimer()
	p.resetTTLTimer()
	p.log.Info("partition started", "role", p.role.String(), "term", p.term)
}

// resetTTLTimer (re)arms the WAL TTL compaction pass, regardless of
// role — every replica, not just the leader, owns its own WAL
// retention. A no-op when Config.WALTTL is zero.
func (p *Partition) resetTTLTimer() {
	if p.cfg.WALTTL <= 0 {
		return
	}
	interval := p.cfg.WALTTL / 4
	if interval <= 0 {
		interval = time.Second
	}
	p.partitionLock.Lock()
	if p.ttlTimer != nil {
		p.ttlTimer.Stop()
	}
	p.ttlTimer = p.scheduler.AfterFunc(interval, p.onTTLTick)
	p.partitionLock.Unlock()
}

// onTTLTick runs one WAL compaction pass, dropping committed entries
// that are both below committedLogID and older than Config.WALTTL.
func (p *Partition) onTTLTick() {
	select {
	case <-p.stopCh:
		return
	default:
	}

	p.partitionLock.RLock()
	committed := p.committedLogID
	p.partitionLock.RUnlock()

	if _, err := p.wal.CompactExpired(committed); err != nil {
		p.log.Warn("wal ttl compaction failed", "err", err)
	}
	p.resetTTLTimer()
}

// Stop permanently halts the partition: timers are canceled, every
// peer stub is stopped and joined, and the I/O pool drains.
func (p *Partition) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)

		p.partitionLock.Lock()
		p.status = StatusStopped
		if p.electionTimer != nil {
			p.electionTimer.Stop()
		}
		if p.heartbeatTimer != nil {
			p.heartbeatTimer.Stop()
		}
		if p.syncTimer != nil {
			p.syncTimer.Stop()
		}
		if p.ttlTimer != nil {
			p.ttlTimer.Stop()
		}
		stubs := make([]*hostStub, 0, len(p.stubs))
		for _, s := range p.stubs {
			stubs = append(stubs, s)
		}
		p.partitionLock.Unlock()

		for _, s := range stubs {
			s.Stop()
			s.WaitForStop()
		}
		p.io.Wait()
		p.host.Cleanup()
		close(p.stopped)
	})
}

// Stopped returns a channel closed once Stop has fully completed.
func (p *Partition) Stopped() <-chan struct{} { return p.stopped }

// Role returns the partition's current Raft role.
func (p *Partition) Role() Role {
	p.partitionLock.RLock()
	defer p.partitionLock.RUnlock()
	return p.role
}

// Status returns the partition's current lifecycle status.
func (p *Partition) Status() Status {
	p.partitionLock.RLock()
	defer p.partitionLock.RUnlock()
	return p.status
}

// Term returns the partition's current term.
func (p *Partition) Term() Term {
	p.partitionLock.RLock()
	defer p.partitionLock.RUnlock()
	return p.term
}

// CommittedLogID returns the highest log ID known to be committed.
func (p *Partition) CommittedLogID() LogID {
	p.partitionLock.RLock()
	defer p.partitionLock.RUnlock()
	return p.committedLogID
}

// Leader returns the address of the last known leader, which may be
// stale or zero if none has been discovered yet.
func (p *Partition) Leader() HostAddr {
	p.partitionLock.RLock()
	defer p.partitionLock.RUnlock()
	return p.leader
}

func (p *Partition) isLeader() bool {
	p.partitionLock.RLock()
	defer p.partitionLock.RUnlock()
	return p.role == RoleLeader && p.status == StatusRunning
}

// touchContact records that addr was just sent an AppendLogs/KeepAlive
// RPC, so onSyncTick knows not to re-ping it again until
// SyncWithFollowerInterval has passed.
func (p *Partition) touchContact(addr HostAddr) {
	p.partitionLock.Lock()
	p.peerLastContactMs[addr] = p.clock.NowMillis()
	p.partitionLock.Unlock()
}

// walEntryFrom/walEntryTo convert between the root package's LogEntry
// and the internal WAL/wire codec's LogEntry, at the one seam where
// the core crosses into the persistence/transport packages.
func walEntryFrom(e LogEntry) wire.LogEntry {
	return wire.LogEntry{LogID: e.LogID, Term: e.Term, Cluster: e.Cluster, Type: int32(e.Type), Payload: e.Payload}
}

func walEntryTo(e wire.LogEntry) LogEntry {
	return LogEntry{LogID: e.LogID, Term: e.Term, Cluster: e.Cluster, Type: LogType(e.Type), Payload: e.Payload}
}

// sliceIterator satisfies LogIterator over an in-memory slice, used to
// hand CommitLogs the entries a flight just got acknowledged by
// quorum, without round-tripping them through the WAL first.
type sliceIterator struct {
	entries []LogEntry
	pos     int
}

func newSliceIterator(entries []LogEntry) *sliceIterator {
	return &sliceIterator{entries: entries}
}

func (s *sliceIterator) Valid() bool { return s.pos < len(s.entries) }

func (s *sliceIterator) Entry() (LogEntry, error) {
	return s.entries[s.pos], nil
}

func (s *sliceIterator) Next() { s.pos++ }

func minLogID(a, b LogID) LogID {
	if a < b {
		return a
	}
	return b
}

func electionBackoff(weight int) time.Duration {
	// (rand32(1500) + 500) * weight, grounded on the original's
	// RaftPart.cpp:1321 weighted exponential backoff on E_LOG_STALE.
	base := time.Duration(500+rand.Int31n(1500)) * time.Millisecond
	return base * time.Duration(weight)
}
