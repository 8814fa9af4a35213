package blocksync

import (
	"errors"
	"fmt"

	"github.com/ethersync/ethersync/types"
)

var (
	// errPeerGone is reported when a peer's response future is closed
	// without a value, i.e. the connection went away mid-request.
	errPeerGone = errors.New("peer terminated before answering")

	// errBatchNotMonotonic is reported when a header batch is not spaced by
	// a uniform positive step.
	errBatchNotMonotonic = errors.New("header batch heights are not uniformly spaced")

	// errBatchBrokenLink is reported when adjacent headers of a batch do
	// not form a hash chain.
	errBatchBrokenLink = errors.New("header batch parent hash mismatch")

	// ErrPoolClosed is returned by SyncPool.Add after Close.
	ErrPoolClosed = errors.New("peer pool is closed")

	// ErrPeerBanned is returned by SyncPool.Add for a previously dropped peer.
	ErrPeerBanned = errors.New("peer was dropped earlier")
)

// BadBatchError attributes a structurally invalid header batch to the peer
// that sent it.
type BadBatchError struct {
	NodeID types.NodeID
	Height int64
	Reason error
}

func (e *BadBatchError) Error() string {
	return fmt.Sprintf("bad header batch from %s at height %d: %v", e.NodeID, e.Height, e.Reason)
}

func (e *BadBatchError) Unwrap() error { return e.Reason }
