// Package peerlist keeps the rendezvous registry: peer addresses grouped by
// channel topic, each expiring unless refreshed.
package peerlist

import (
	"context"
	"errors"
)

// ErrInvalid is returned for an empty topic or address.
var ErrInvalid = errors.New("topic and addr are required")

// Store is the registry behind the bootstrap server.
type Store interface {
	// Register upserts addr under topic and refreshes its expiry.
	Register(ctx context.Context, topic, addr string) error
	// List returns the live addresses under topic, sorted.
	List(ctx context.Context, topic string) ([]string, error)
	// Remove drops addr from topic. Removing an unknown addr is not an error.
	Remove(ctx context.Context, topic, addr string) error
}

func validate(topic, addr string) error {
	if topic == "" || addr == "" {
		return ErrInvalid
	}
	return nil
}
