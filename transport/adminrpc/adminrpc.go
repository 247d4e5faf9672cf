// Package adminrpc is the operator/control-plane surface: a gRPC
// service, carried over the hand-written JSON codec instead of
// protobuf codegen, exposing GetStatus and the membership-change
// operations (AddPeer/RemovePeer/PromoteLearner/TransferLeader) that
// SendCommandAsync drives on the leader. There is no Join operation.
//
// Grounded on amirimatin-go-cluster's pkg/transport/grpc: a
// hand-written grpc.ServiceDesc with one jsonCodec{} registered once,
// so the wire shape is just Go structs tagged for encoding/json rather
// than a .proto-generated type.
package adminrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	raftpart "github.com/nebula-raftex/raftpart"
)

// jsonCodec lets the admin surface skip protobuf codegen entirely,
// matching the teacher pack's approach for internal management calls.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type empty struct{}

// StatusResponse carries the read-only partition fields an operator
// status probe reports: role, status, term, leader and committed log ID.
type StatusResponse struct {
	Role           string `json:"role"`
	Status         string `json:"status"`
	Term           int64  `json:"term"`
	Leader         string `json:"leader"`
	CommittedLogID int64  `json:"committedLogId"`
}

// PeerRequest names one peer for an AddPeer/RemovePeer/PromoteLearner
// call.
type PeerRequest struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Learner bool   `json:"learner,omitempty"`
}

// CommandResponse reports whether a submitted COMMAND committed.
type CommandResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// adminServer is the interface the hand-rolled service descriptor
// below dispatches to.
type adminServer interface {
	GetStatus(ctx context.Context, in *empty) (*StatusResponse, error)
	AddPeer(ctx context.Context, in *PeerRequest) (*CommandResponse, error)
	RemovePeer(ctx context.Context, in *PeerRequest) (*CommandResponse, error)
	PromoteLearner(ctx context.Context, in *PeerRequest) (*CommandResponse, error)
	TransferLeader(ctx context.Context, in *PeerRequest) (*CommandResponse, error)
}

// partAdmin adapts one *raftpart.Partition to adminServer.
type partAdmin struct {
	part *raftpart.Partition
}

func (a *partAdmin) GetStatus(ctx context.Context, _ *empty) (*StatusResponse, error) {
	leader := a.part.Leader()
	return &StatusResponse{
		Role:           a.part.Role().String(),
		Status:         a.part.Status().String(),
		Term:           a.part.Term(),
		Leader:         leader.String(),
		CommittedLogID: a.part.CommittedLogID(),
	}, nil
}

func (a *partAdmin) AddPeer(ctx context.Context, in *PeerRequest) (*CommandResponse, error) {
	err := a.part.AddPeerAsync(raftpart.HostAddr{Host: in.Host, Port: in.Port}, in.Learner).Wait()
	return commandResponse(err), nil
}

func (a *partAdmin) RemovePeer(ctx context.Context, in *PeerRequest) (*CommandResponse, error) {
	err := a.part.RemovePeerAsync(raftpart.HostAddr{Host: in.Host, Port: in.Port}).Wait()
	return commandResponse(err), nil
}

func (a *partAdmin) PromoteLearner(ctx context.Context, in *PeerRequest) (*CommandResponse, error) {
	err := a.part.PromoteLearnerAsync(raftpart.HostAddr{Host: in.Host, Port: in.Port}).Wait()
	return commandResponse(err), nil
}

func (a *partAdmin) TransferLeader(ctx context.Context, in *PeerRequest) (*CommandResponse, error) {
	err := a.part.TransferLeaderAsync(raftpart.HostAddr{Host: in.Host, Port: in.Port}).Wait()
	return commandResponse(err), nil
}

func commandResponse(err error) *CommandResponse {
	if err != nil {
		return &CommandResponse{Accepted: false, Error: err.Error()}
	}
	return &CommandResponse{Accepted: true}
}

var _Admin_serviceDesc = grpc.ServiceDesc{
	ServiceName: "raftpart.v1.Admin",
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _Admin_GetStatus_Handler},
		{MethodName: "AddPeer", Handler: _Admin_AddPeer_Handler},
		{MethodName: "RemovePeer", Handler: _Admin_RemovePeer_Handler},
		{MethodName: "PromoteLearner", Handler: _Admin_PromoteLearner_Handler},
		{MethodName: "TransferLeader", Handler: _Admin_TransferLeader_Handler},
	},
}

func _Admin_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftpart.v1.Admin/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).GetStatus(ctx, req.(*empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_AddPeer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).AddPeer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftpart.v1.Admin/AddPeer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).AddPeer(ctx, req.(*PeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_RemovePeer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).RemovePeer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftpart.v1.Admin/RemovePeer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).RemovePeer(ctx, req.(*PeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_PromoteLearner_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).PromoteLearner(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftpart.v1.Admin/PromoteLearner"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).PromoteLearner(ctx, req.(*PeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Admin_TransferLeader_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(adminServer).TransferLeader(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftpart.v1.Admin/TransferLeader"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(adminServer).TransferLeader(ctx, req.(*PeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Server wraps a *grpc.Server exposing exactly one Partition's admin
// surface. A deployment with several partitions on one node runs one
// Server per partition on distinct ports, same as the hot-path
// quicrpc.Server keys its dispatch by (space, part) instead.
type Server struct {
	srv *grpc.Server
	lis net.Listener
}

// NewServer binds addr and starts serving part's admin surface.
func NewServer(addr string, part *raftpart.Partition) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("adminrpc: listen %s: %w", addr, err)
	}
	srv := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	srv.RegisterService(&_Admin_serviceDesc, &partAdmin{part: part})
	go func() { _ = srv.Serve(lis) }()
	return &Server{srv: srv, lis: lis}, nil
}

// Stop gracefully stops the server, falling back to a hard stop if
// graceful shutdown exceeds the timeout.
func (s *Server) Stop(timeout time.Duration) {
	ch := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(ch) }()
	select {
	case <-ch:
	case <-time.After(timeout):
		s.srv.Stop()
	}
}

// Client is a thin GetStatus/membership-change caller for operator
// tooling (the cobra CLI in cmd/raftd uses this).
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to an adminrpc.Server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	cc, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("adminrpc: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error { return c.cc.Close() }

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/raftpart.v1.Admin/GetStatus", &empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddPeer(ctx context.Context, host string, port int, learner bool) (*CommandResponse, error) {
	out := new(CommandResponse)
	req := &PeerRequest{Host: host, Port: port, Learner: learner}
	if err := c.cc.Invoke(ctx, "/raftpart.v1.Admin/AddPeer", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RemovePeer(ctx context.Context, host string, port int) (*CommandResponse, error) {
	out := new(CommandResponse)
	req := &PeerRequest{Host: host, Port: port}
	if err := c.cc.Invoke(ctx, "/raftpart.v1.Admin/RemovePeer", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PromoteLearner(ctx context.Context, host string, port int) (*CommandResponse, error) {
	out := new(CommandResponse)
	req := &PeerRequest{Host: host, Port: port}
	if err := c.cc.Invoke(ctx, "/raftpart.v1.Admin/PromoteLearner", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TransferLeader(ctx context.Context, host string, port int) (*CommandResponse, error) {
	out := new(CommandResponse)
	req := &PeerRequest{Host: host, Port: port}
	if err := c.cc.Invoke(ctx, "/raftpart.v1.Admin/TransferLeader", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
