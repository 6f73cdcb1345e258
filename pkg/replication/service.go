package replication

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "shepherd.PeerSync"
	pushMethod  = "/" + serviceName + "/Push"
)

// Snapshot is one scope's full content as published by its writer
type Snapshot struct {
	Scope string
	Rev   int64
	KV    map[string]string
	// Leave asks receivers to forget the scope
	Leave bool
}

// PeerSyncServer receives snapshots pushed by peers
type PeerSyncServer interface {
	Push(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

// The service has a single unary method carrying well-known protobuf types,
// so it is registered by hand instead of through generated stubs.
var peerSyncServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PeerSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Push",
			Handler:    pushHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shepherd/peersync",
}

// RegisterPeerSyncServer registers srv on a gRPC server
func RegisterPeerSyncServer(s grpc.ServiceRegistrar, srv PeerSyncServer) {
	s.RegisterService(&peerSyncServiceDesc, srv)
}

func pushHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerSyncServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: pushMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerSyncServer).Push(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// push invokes Push on a client connection
func push(ctx context.Context, cc grpc.ClientConnInterface, snap Snapshot) error {
	in, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	out := new(emptypb.Empty)
	return cc.Invoke(ctx, pushMethod, in, out)
}

// The revision travels as a string since structpb numbers are float64.
func encodeSnapshot(snap Snapshot) (*structpb.Struct, error) {
	kv := make(map[string]interface{}, len(snap.KV))
	for k, v := range snap.KV {
		kv[k] = v
	}

	st, err := structpb.NewStruct(map[string]interface{}{
		"scope": snap.Scope,
		"rev":   strconv.FormatInt(snap.Rev, 10),
		"kv":    kv,
		"leave": snap.Leave,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return st, nil
}

func decodeSnapshot(st *structpb.Struct) (Snapshot, error) {
	fields := st.GetFields()

	scope := fields["scope"].GetStringValue()
	if scope == "" {
		return Snapshot{}, fmt.Errorf("snapshot has no scope")
	}

	rev, err := strconv.ParseInt(fields["rev"].GetStringValue(), 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot revision: %w", err)
	}

	kv := make(map[string]string)
	for k, v := range fields["kv"].GetStructValue().GetFields() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Snapshot{}, fmt.Errorf("value for key %q is not a string", k)
		}
		kv[k] = s.StringValue
	}

	return Snapshot{
		Scope: scope,
		Rev:   rev,
		KV:    kv,
		Leave: fields["leave"].GetBoolValue(),
	}, nil
}
