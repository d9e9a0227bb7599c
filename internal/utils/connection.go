package utils

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Connect creates a lazy gRPC client for the peer controller at addr.
// WaitForReady(true) makes the first stream wait for the peer to come up
// instead of failing while the other instance is still starting.
func Connect(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.WaitForReady(true),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create control client for %s: %w", addr, err)
	}
	return conn, nil
}
