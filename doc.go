// Package raftpart implements the Raft consensus core for a single
// partition replica: leader election, log replication, commit,
// membership change, and snapshot install.
//
// The wire transport, the durable bytes of the write-ahead log, the
// host state machine, and snapshot production/consumption are external
// collaborators reached only through the Transport and Host interfaces
// defined in this package. Everything else a partition needs — the
// peer directory, the WAL adapter, the append iterator, the per-peer
// replication stub, and the snapshot coordinator — lives here or in
// internal subpackages.
package raftpart
