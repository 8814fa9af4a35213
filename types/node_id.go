package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// NodeIDByteLength is the length of a crypto-derived node ID, in bytes.
const NodeIDByteLength = 20

// NodeID is a hex-encoded crypto-derived ID of a remote peer. It is used to
// attribute received headers and blocks to the peer that delivered them.
type NodeID string

// NewNodeID returns a lowercased (normalized) NodeID.
func NewNodeID(nodeID string) (NodeID, error) {
	nodeID = strings.ToLower(nodeID)
	if err := NodeID(nodeID).Validate(); err != nil {
		return "", err
	}
	return NodeID(nodeID), nil
}

// NodeIDFromPubKeyBytes creates a node ID from the given raw key material.
func NodeIDFromPubKeyBytes(b []byte) NodeID {
	return NodeID(hex.EncodeToString(b))
}

// Bytes converts the node ID to its binary byte representation.
func (id NodeID) Bytes() ([]byte, error) {
	bz, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("invalid node ID encoding: %w", err)
	}
	return bz, nil
}

// Validate validates the NodeID.
func (id NodeID) Validate() error {
	switch {
	case len(id) == 0:
		return errors.New("empty node ID")

	case len(id) != 2*NodeIDByteLength:
		return fmt.Errorf("invalid node ID length %d, expected %d", len(id), 2*NodeIDByteLength)

	case strings.ToLower(string(id)) != string(id):
		return fmt.Errorf("node ID %q is not lowercased", id)
	}

	if _, err := hex.DecodeString(string(id)); err != nil {
		return fmt.Errorf("node ID %q is not hex-encoded: %w", id, err)
	}
	return nil
}
