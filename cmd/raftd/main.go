// Command raftd is the operator-facing binary for a single partition
// replica: it bootstraps a Partition over the QUIC hot-path transport
// and a gRPC admin surface, and offers status/membership subcommands
// against a running instance's admin surface.
//
// Grounded on amirimatin-go-cluster's cmd/clusterctl + pkg/cli
// (cobra root with run/status/join/leave subcommands reused as
// library code) and cmd/memdemo (a minimal runnable demo binary with
// its own signal-driven context).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	raftpart "github.com/nebula-raftex/raftpart"
	"github.com/nebula-raftex/raftpart/internal/walstore"
	"github.com/nebula-raftex/raftpart/internal/wire"
	"github.com/nebula-raftex/raftpart/transport/adminrpc"
	"github.com/nebula-raftex/raftpart/transport/quicrpc"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "raftd",
		Short:         "raftpart partition replica daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newAddPeerCmd())
	root.AddCommand(newRemovePeerCmd())
	root.AddCommand(newPromoteLearnerCmd())
	root.AddCommand(newTransferLeaderCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		space, part                       int64
		selfHost, raftAddr, adminAddr     string
		selfPort                          int
		dataDir                           string
		joinCSV                           string
		heartbeat, snapshotTimeout        time.Duration
		walTTL, syncInterval              time.Duration
		walFsync, leaderStickiness        bool
		syncWithFollower                  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one partition replica",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			logger := hclog.New(&hclog.LoggerOptions{Name: "raftd", Level: hclog.Info})
			self := raftpart.HostAddr{Host: selfHost, Port: selfPort}

			wal, err := walstore.Open(dataDir, walstore.Options{Fsync: walFsync, TTL: walTTL}, func(e wire.LogEntry) bool { return true })
			if err != nil {
				return fmt.Errorf("open wal: %w", err)
			}

			cfg := raftpart.NewConfig(
				raftpart.WithHeartbeatInterval(heartbeat),
				raftpart.WithSnapshotTimeout(snapshotTimeout),
				raftpart.WithWALFsync(walFsync),
				raftpart.WithWALTTL(walTTL),
				raftpart.WithSyncWithFollower(syncWithFollower, syncInterval),
				raftpart.WithLeaderStickiness(leaderStickiness),
			)

			client := quicrpc.NewClient(nil)
			p := raftpart.NewPartition(space, part, self, cfg, raftpart.Deps{
				Host:      &logOnlyHost{log: logger.Named("host")},
				Transport: client,
				WAL:       wal,
				Logger:    logger,
			})

			for _, peer := range splitCSV(joinCSV) {
				addr, err := parseHostPort(peer)
				if err != nil {
					return fmt.Errorf("join peer %q: %w", peer, err)
				}
				p.AddPeer(addr, false)
			}

			server, err := quicrpc.NewServer(raftAddr, nil, logger)
			if err != nil {
				return fmt.Errorf("start quic server: %w", err)
			}
			server.Register(space, part, p)
			defer server.Close()

			admin, err := adminrpc.NewServer(adminAddr, p)
			if err != nil {
				return fmt.Errorf("start admin server: %w", err)
			}
			defer admin.Stop(5 * time.Second)

			p.Start(ctx)
			defer p.Stop()

			fmt.Printf("raftd running: space=%d part=%d self=%s raft=%s admin=%s\n", space, part, self, raftAddr, adminAddr)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().Int64Var(&space, "space", 0, "space id")
	cmd.Flags().Int64Var(&part, "part", 0, "partition id")
	cmd.Flags().StringVar(&selfHost, "host", "127.0.0.1", "this replica's advertised host")
	cmd.Flags().IntVar(&selfPort, "port", 9700, "this replica's advertised port")
	cmd.Flags().StringVar(&raftAddr, "raft-addr", ":9700", "QUIC bind address for the hot replication path")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", ":9800", "gRPC bind address for the admin surface")
	cmd.Flags().StringVar(&dataDir, "data", "./raftd-data", "WAL data directory")
	cmd.Flags().StringVar(&joinCSV, "peers", "", "comma-separated host:port of existing voters to seed into the Peer Directory")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 5*time.Second, "leader heartbeat interval")
	cmd.Flags().DurationVar(&snapshotTimeout, "snapshot-timeout", 300*time.Second, "follower-side stalled-transfer timeout")
	cmd.Flags().BoolVar(&walFsync, "wal-fsync", false, "fsync every WAL append")
	cmd.Flags().DurationVar(&walTTL, "wal-ttl", 4*time.Hour, "drop committed WAL entries once they're older than this (0 disables compaction)")
	cmd.Flags().BoolVar(&syncWithFollower, "sync-with-follower", false, "periodically KeepAlive peers not contacted recently, independent of the heartbeat cadence")
	cmd.Flags().DurationVar(&syncInterval, "sync-with-follower-interval", 60*time.Second, "sync-with-follower tick period")
	cmd.Flags().BoolVar(&leaderStickiness, "leader-stickiness", true, "reject a higher-term leader within a heartbeat window")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "fetch a replica's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			c, err := adminrpc.Dial(ctx, addr)
			if err != nil {
				return err
			}
			defer c.Close()
			st, err := c.GetStatus(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("role=%s status=%s term=%d leader=%s committedLogId=%d\n",
				st.Role, st.Status, st.Term, st.Leader, st.CommittedLogID)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "admin-addr", "127.0.0.1:9800", "admin surface address of a replica")
	return cmd
}

func newAddPeerCmd() *cobra.Command {
	return peerCommand("add-peer", "submit a COMMAND adding a peer (voter or learner)",
		func(ctx context.Context, c *adminrpc.Client, host string, port int, learner bool) (*adminrpc.CommandResponse, error) {
			return c.AddPeer(ctx, host, port, learner)
		}, true)
}

func newRemovePeerCmd() *cobra.Command {
	return peerCommand("remove-peer", "submit a COMMAND removing a peer",
		func(ctx context.Context, c *adminrpc.Client, host string, port int, _ bool) (*adminrpc.CommandResponse, error) {
			return c.RemovePeer(ctx, host, port)
		}, false)
}

func newPromoteLearnerCmd() *cobra.Command {
	return peerCommand("promote-learner", "submit a COMMAND promoting a learner to voter",
		func(ctx context.Context, c *adminrpc.Client, host string, port int, _ bool) (*adminrpc.CommandResponse, error) {
			return c.PromoteLearner(ctx, host, port)
		}, false)
}

func newTransferLeaderCmd() *cobra.Command {
	return peerCommand("transfer-leader", "submit a COMMAND stepping the current leader down in favor of a target",
		func(ctx context.Context, c *adminrpc.Client, host string, port int, _ bool) (*adminrpc.CommandResponse, error) {
			return c.TransferLeader(ctx, host, port)
		}, false)
}

func peerCommand(use, short string, call func(context.Context, *adminrpc.Client, string, int, bool) (*adminrpc.CommandResponse, error), withLearner bool) *cobra.Command {
	var (
		adminAddr     string
		peerHost      string
		peerPort      int
		learner       bool
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			c, err := adminrpc.Dial(ctx, adminAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := call(ctx, c, peerHost, peerPort, learner)
			if err != nil {
				return err
			}
			if !resp.Accepted {
				return fmt.Errorf("rejected: %s", resp.Error)
			}
			fmt.Println("committed")
			return nil
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "127.0.0.1:9800", "admin surface address of the leader")
	cmd.Flags().StringVar(&peerHost, "peer-host", "", "target peer host")
	cmd.Flags().IntVar(&peerPort, "peer-port", 0, "target peer port")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "submission timeout")
	if withLearner {
		cmd.Flags().BoolVar(&learner, "learner", false, "add as a non-voting learner")
	}
	return cmd
}

// logOnlyHost is the demo Host wired into "raftd run": every callback
// just logs. A real deployment supplies its own state machine in place
// of this (Host is the one interface SPEC_FULL.md leaves external).
type logOnlyHost struct {
	log hclog.Logger

	// snapRows/snapBytes are the running totals of the snapshot
	// transfer in progress, reset once its final batch is applied.
	snapRows, snapBytes int64
}

func (h *logOnlyHost) PreProcessLog(logID raftpart.LogID, term raftpart.Term, cluster raftpart.ClusterID, payload []byte) bool {
	return true
}

func (h *logOnlyHost) CommitLogs(it raftpart.LogIterator) bool {
	for it.Valid() {
		e, err := it.Entry()
		if err != nil {
			h.log.Error("commit iterate failed", "err", err)
			return false
		}
		h.log.Info("committed", "logId", e.LogID, "type", e.Type.String(), "bytes", len(e.Payload))
		it.Next()
	}
	return true
}

func (h *logOnlyHost) CommitSnapshot(rows [][]byte, logID raftpart.LogID, logTerm raftpart.Term, done bool) (int64, int64) {
	var bytes int64
	for _, r := range rows {
		bytes += int64(len(r))
	}
	h.log.Info("committed snapshot batch", "rows", len(rows), "bytes", bytes, "done", done)
	h.snapRows += int64(len(rows))
	h.snapBytes += bytes
	count, total := h.snapRows, h.snapBytes
	if done {
		h.snapRows, h.snapBytes = 0, 0
	}
	return count, total
}

func (h *logOnlyHost) OnElected(term raftpart.Term) { h.log.Info("elected", "term", term) }

func (h *logOnlyHost) OnLostLeadership(term raftpart.Term) { h.log.Info("lost leadership", "term", term) }

func (h *logOnlyHost) OnDiscoverNewLeader(addr raftpart.HostAddr) {
	h.log.Info("discovered leader", "leader", addr.String())
}

func (h *logOnlyHost) Cleanup() { h.log.Info("cleanup") }

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseHostPort(s string) (raftpart.HostAddr, error) {
	host, portStr, err := splitHostPort(s)
	if err != nil {
		return raftpart.HostAddr{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return raftpart.HostAddr{}, fmt.Errorf("bad port in %q: %w", s, err)
	}
	return raftpart.HostAddr{Host: host, Port: port}, nil
}

func splitHostPort(s string) (string, string, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("expected host:port, got %q", s)
	}
	return s[:idx], s[idx+1:], nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
