package blocksync

import (
	tmbytes "github.com/ethersync/ethersync/libs/bytes"
	"github.com/ethersync/ethersync/types"
)

// HeadersResponse is the resolution of a header request future.
type HeadersResponse struct {
	Headers []*types.Header
	Err     error
}

// BlocksResponse is the resolution of a body request future.
type BlocksResponse struct {
	Blocks []*types.Block
	Err    error
}

// PeerHandle is the transport-side face of a remote peer. Handles may become
// invalid at any time: every send returns a nil channel when the peer can no
// longer carry the request. A non-nil channel resolves exactly once, or is
// closed without a value if the connection dies first.
//
// The wire codec and handshake behind a handle are out of scope here; the
// p2p layer provides implementations and keeps the SyncPool up to date.
type PeerHandle interface {
	// NodeID returns the owning node's ID.
	NodeID() types.NodeID

	// IsIdle reports whether the peer is currently not servicing a request
	// from this subsystem.
	IsIdle() bool

	// SendGetBlockHeaders requests count headers starting at the given
	// height.
	SendGetBlockHeaders(start int64, count int, reverse bool) <-chan HeadersResponse

	// SendGetBlockHeadersByHash requests count headers anchored at the
	// given hash, each step blocks apart.
	SendGetBlockHeadersByHash(hash tmbytes.HexBytes, count, step int, reverse bool) <-chan HeadersResponse

	// SendGetBlockBodies requests the bodies for the given headers.
	SendGetBlockBodies(headers []*types.HeaderWrapper) <-chan BlocksResponse

	// Drop severs the connection to the peer. The pool observes the drop
	// and stops handing the peer out.
	Drop()
}

// PeerPool supplies idle peers to the download workers. Implementations must
// be safe for concurrent use: both workers and their completion callbacks
// consult the pool.
type PeerPool interface {
	// AnyIdle returns some idle peer, or nil if none is available right now.
	AnyIdle() PeerHandle

	// ByNodeID resolves a node ID to its current handle, or nil if the peer
	// has left the pool.
	ByNodeID(id types.NodeID) PeerHandle
}
