package models

import (
	"fmt"
	"strings"
)

// Role is the HTTP/2 role an instance was started with
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// ParseRole parses a role string of the form "client" or "server"
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleClient:
		return RoleClient, nil
	case RoleServer:
		return RoleServer, nil
	default:
		return "", fmt.Errorf("invalid role %q: expected %q or %q", s, RoleClient, RoleServer)
	}
}

// Peer returns the opposite role
func (r Role) Peer() Role {
	if r == RoleClient {
		return RoleServer
	}
	return RoleClient
}

func (r Role) String() string {
	return string(r)
}
