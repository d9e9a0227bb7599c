package control

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName    = "h2sync.control.v1.Control"
	syncStreamName = "Sync"
	syncMethod     = "/" + serviceName + "/" + syncStreamName
)

// controlServer is implemented by the listening side of the control channel
type controlServer interface {
	Sync(stream grpc.ServerStream) error
}

func syncHandler(srv any, stream grpc.ServerStream) error {
	return srv.(controlServer).Sync(stream)
}

// controlServiceDesc declares the single bidirectional Sync stream carrying
// *structpb.Struct messages in both directions
var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*controlServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    syncStreamName,
			Handler:       syncHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "h2sync/control.proto",
}

// msgStream is the part of grpc.ServerStream and grpc.ClientStream the channel uses
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

func sendStruct(s msgStream, m *Message) error {
	st, err := m.toStruct()
	if err != nil {
		return err
	}
	return s.SendMsg(st)
}

func recvStruct(s msgStream) (*Message, error) {
	st := &structpb.Struct{}
	if err := s.RecvMsg(st); err != nil {
		return nil, err
	}
	return messageFromStruct(st)
}
