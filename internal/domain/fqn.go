// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxRoomNameLen = 200
	// DefaultRoom is used when a browser connects without a conference param.
	DefaultRoom RoomName = "unknown"
)

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrBadFQN          = errors.New("malformed fqn")
)

type (
	// Tenant is the customer namespace prefixed to room names.
	Tenant string

	// RoomName is a conference name, the unit of event multiplexing.
	RoomName string
)

// FQN is a fully-qualified conference name, "tenant/room".
// The remote event source multiplexes several rooms over one channel and
// routes by FQN.
type FQN struct {
	Tenant Tenant
	Room   RoomName
}

func NewFQN(tenant Tenant, room RoomName) FQN {
	return FQN{Tenant: tenant, Room: room}
}

// ParseFQN splits "tenant/room". The room part may itself contain slashes;
// only the first separator is significant.
func ParseFQN(s string) (FQN, error) {
	tenant, room, ok := strings.Cut(s, "/")
	if !ok || tenant == "" || room == "" {
		return FQN{}, ErrBadFQN
	}
	return FQN{Tenant: Tenant(tenant), Room: RoomName(room)}, nil
}

func (f FQN) String() string {
	return string(f.Tenant) + "/" + string(f.Room)
}

// NewRoomName validates raw user input before it becomes an identity.
func NewRoomName(raw string) (RoomName, error) {
	if raw == "" {
		return "", ErrRoomNameEmpty
	}
	if len(raw) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(raw), nil
}
