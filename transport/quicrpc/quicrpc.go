// Package quicrpc is the hot-path Transport binding: AskForVote,
// AppendLog, and SendSnapshot each round-trip over a single QUIC
// stream. Grounded on the teacher's raft_requests.go/raft_server.go
// (quic.DialAddr per call, one packet-type byte in front of the
// marshaled body) but turned into a request/response call instead of
// the teacher's fire-and-forget sends: a stream here stays open long
// enough for the server to write a reply before either side closes it.
package quicrpc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/quic-go/quic-go"

	raftpart "github.com/nebula-raftex/raftpart"
	"github.com/nebula-raftex/raftpart/internal/wire"
)

// Packet type tags, one byte in front of every frame, following the
// teacher's packet numbering (vote/append/snapshot request pairs).
const (
	packetAskForVoteRequest byte = 1
	packetAskForVoteReply   byte = 2
	packetAppendLogRequest  byte = 3
	packetAppendLogReply    byte = 4
	packetSendSnapshotReq   byte = 5
	packetSendSnapshotReply byte = 6
)

// Server is a QUIC listener that dispatches inbound RPCs to a
// *raftpart.Partition per (space, part). One Server can host many
// partitions, matching the teacher's one-listener-per-node shape.
type Server struct {
	log      hclog.Logger
	listener *quic.Listener

	mu         sync.RWMutex
	partitions map[partitionKey]*raftpart.Partition

	closeCh chan struct{}
	closed  sync.Once
}

type partitionKey struct {
	space, part int64
}

// NewServer binds addr and starts accepting QUIC connections. The
// returned server answers nothing until partitions are registered with
// Register.
func NewServer(addr string, tlsConf *tls.Config, logger hclog.Logger) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if tlsConf == nil {
		var err error
		tlsConf, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("quicrpc: generate tls config: %w", err)
		}
	}
	ln, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("quicrpc: listen %s: %w", addr, err)
	}
	s := &Server{
		log:        logger.Named("quicrpc"),
		listener:   ln,
		partitions: make(map[partitionKey]*raftpart.Partition),
		closeCh:    make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Register makes part answer RPCs addressed to (space, partID).
func (s *Server) Register(space, partID int64, part *raftpart.Partition) {
	s.mu.Lock()
	s.partitions[partitionKey{space, partID}] = part
	s.mu.Unlock()
}

// Unregister stops routing RPCs to (space, partID).
func (s *Server) Unregister(space, partID int64) {
	s.mu.Lock()
	delete(s.partitions, partitionKey{space, partID})
	s.mu.Unlock()
}

// Close stops accepting connections and releases the listener.
func (s *Server) Close() error {
	s.closed.Do(func() { close(s.closeCh) })
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept(context.Background())
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				s.log.Warn("accept failed", "err", err)
				continue
			}
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		go s.serveStream(stream)
	}
}

func (s *Server) serveStream(stream quic.Stream) {
	defer stream.Close()

	frame, err := readFrame(stream)
	if err != nil {
		s.log.Warn("read frame failed", "err", err)
		return
	}
	if len(frame) == 0 {
		return
	}
	typ, body := frame[0], frame[1:]

	reply, replyType, err := s.dispatch(typ, body)
	if err != nil {
		s.log.Warn("dispatch failed", "type", typ, "err", err)
		return
	}
	if err := writeFrame(stream, replyType, reply); err != nil {
		s.log.Warn("write reply failed", "err", err)
	}
}

func (s *Server) dispatch(typ byte, body []byte) (reply []byte, replyType byte, err error) {
	switch typ {
	case packetAskForVoteRequest:
		req, err := wire.UnmarshalAskForVoteRequest(body)
		if err != nil {
			return nil, 0, err
		}
		part := s.lookup(req.Space, req.Part)
		if part == nil {
			return wire.MarshalAskForVoteResponse(wire.AskForVoteResponse{ErrorCode: int32(raftpart.ErrNotReady)}), packetAskForVoteReply, nil
		}
		resp := part.HandleAskForVote(fromWireAskForVoteRequest(req))
		return wire.MarshalAskForVoteResponse(toWireAskForVoteResponse(resp)), packetAskForVoteReply, nil

	case packetAppendLogRequest:
		req, err := wire.UnmarshalAppendLogRequest(body)
		if err != nil {
			return nil, 0, err
		}
		part := s.lookup(req.Space, req.Part)
		if part == nil {
			return wire.MarshalAppendLogResponse(wire.AppendLogResponse{ErrorCode: int32(raftpart.ErrNotReady)}), packetAppendLogReply, nil
		}
		resp := part.HandleAppendLog(fromWireAppendLogRequest(req))
		return wire.MarshalAppendLogResponse(toWireAppendLogResponse(resp)), packetAppendLogReply, nil

	case packetSendSnapshotReq:
		req, err := wire.UnmarshalSendSnapshotRequest(body)
		if err != nil {
			return nil, 0, err
		}
		part := s.lookup(req.Space, req.Part)
		if part == nil {
			return wire.MarshalSendSnapshotResponse(wire.SendSnapshotResponse{ErrorCode: int32(raftpart.ErrNotReady)}), packetSendSnapshotReply, nil
		}
		resp := part.HandleSendSnapshot(fromWireSendSnapshotRequest(req))
		return wire.MarshalSendSnapshotResponse(toWireSendSnapshotResponse(resp)), packetSendSnapshotReply, nil

	default:
		return nil, 0, fmt.Errorf("quicrpc: unknown packet type %d", typ)
	}
}

func (s *Server) lookup(space, part int64) *raftpart.Partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[partitionKey{space, part}]
}

// Client is a raftpart.Transport backed by one short-lived QUIC
// connection per call, matching the teacher's dial-per-RPC shape.
// Connections are not pooled (the hot path is a handful of peers per
// partition): every call dials a new connection and performs a full
// handshake; 0-RTT is not used.
type Client struct {
	tlsConf *tls.Config
}

// NewClient builds a Client. A nil tlsConf dials with certificate
// verification disabled, appropriate for a closed cluster of peers
// that authenticate each other out of band (mutual TLS is layered in
// by callers that need it, via tlsConf).
func NewClient(tlsConf *tls.Config) *Client {
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"raftpart"}}
	}
	return &Client{tlsConf: tlsConf}
}

func (c *Client) AskForVote(ctx context.Context, to raftpart.HostAddr, req *raftpart.AskForVoteRequest) (*raftpart.AskForVoteResponse, error) {
	body := wire.MarshalAskForVoteRequest(toWireAskForVoteRequest(req))
	reply, err := c.roundTrip(ctx, to, packetAskForVoteRequest, body)
	if err != nil {
		return nil, err
	}
	resp, err := wire.UnmarshalAskForVoteResponse(reply)
	if err != nil {
		return nil, err
	}
	out := fromWireAskForVoteResponse(resp)
	return &out, nil
}

func (c *Client) AppendLog(ctx context.Context, to raftpart.HostAddr, req *raftpart.AppendLogRequest) (*raftpart.AppendLogResponse, error) {
	body := wire.MarshalAppendLogRequest(toWireAppendLogRequest(req))
	reply, err := c.roundTrip(ctx, to, packetAppendLogRequest, body)
	if err != nil {
		return nil, err
	}
	resp, err := wire.UnmarshalAppendLogResponse(reply)
	if err != nil {
		return nil, err
	}
	out := fromWireAppendLogResponse(resp)
	return &out, nil
}

func (c *Client) SendSnapshot(ctx context.Context, to raftpart.HostAddr, req *raftpart.SendSnapshotRequest) (*raftpart.SendSnapshotResponse, error) {
	body := wire.MarshalSendSnapshotRequest(toWireSendSnapshotRequest(req))
	reply, err := c.roundTrip(ctx, to, packetSendSnapshotReq, body)
	if err != nil {
		return nil, err
	}
	resp, err := wire.UnmarshalSendSnapshotResponse(reply)
	if err != nil {
		return nil, err
	}
	return &raftpart.SendSnapshotResponse{ErrorCode: raftpart.ErrorCode(resp.ErrorCode)}, nil
}

func (c *Client) roundTrip(ctx context.Context, to raftpart.HostAddr, typ byte, body []byte) ([]byte, error) {
	addr := net.JoinHostPort(to.Host, fmt.Sprintf("%d", to.Port))
	conn, err := quic.DialAddr(ctx, addr, c.tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("quicrpc: dial %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "done")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicrpc: open stream: %w", err)
	}
	defer stream.Close()

	if err := writeFrame(stream, typ, body); err != nil {
		return nil, err
	}
	if err := stream.Close(); err != nil {
		return nil, err
	}
	return readFrame(stream)
}

// writeFrame writes [type byte][4-byte big-endian length][body].
func writeFrame(w io.Writer, typ byte, body []byte) error {
	header := make([]byte, 5)
	header[0] = typ
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads one [type byte][body] frame, returning the type
// prepended to the body so callers can switch on frame[0].
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[1:])
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	return append([]byte{header[0]}, body...), nil
}

// generateTLSConfig builds a throwaway self-signed certificate. QUIC
// requires TLS 1.3 and nothing in the reference pack supplies a
// certificate management library, so this leans on crypto/tls and
// crypto/x509 directly — the same approach quic-go's own examples use.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"raftpart"},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
