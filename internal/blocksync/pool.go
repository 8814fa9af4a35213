package blocksync

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ethersync/ethersync/libs/log"
	"github.com/ethersync/ethersync/types"
)

// bannedPeerCacheSize bounds the memory kept for remembering dropped peers.
const bannedPeerCacheSize = 1024

// SyncPool is the default PeerPool implementation. The p2p layer adds peers
// after a successful handshake and removes them when connections close; the
// download workers only consume it. Dropped peers are remembered in an LRU
// cache and refused on re-add, so a misbehaving node cannot immediately
// rejoin the rotation.
type SyncPool struct {
	logger log.Logger

	mtx    sync.RWMutex
	peers  map[types.NodeID]PeerHandle
	closed bool

	banned *lru.Cache
}

var _ PeerPool = (*SyncPool)(nil)

// NewSyncPool creates an empty pool.
func NewSyncPool(logger log.Logger) *SyncPool {
	banned, err := lru.New(bannedPeerCacheSize)
	if err != nil {
		panic(err)
	}
	return &SyncPool{
		logger: logger,
		peers:  make(map[types.NodeID]PeerHandle),
		banned: banned,
	}
}

// Add registers a peer with the pool. Banned and duplicate peers are
// refused.
func (p *SyncPool) Add(peer PeerHandle) error {
	id := peer.NodeID()
	if p.banned.Contains(id) {
		return ErrPeerBanned
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if _, ok := p.peers[id]; ok {
		return nil
	}
	p.peers[id] = peer
	p.logger.Debug("peer added to sync pool", "peer", id, "num_peers", len(p.peers))
	return nil
}

// Remove forgets a peer, typically because its connection closed. The peer
// is not banned and may be re-added.
func (p *SyncPool) Remove(id types.NodeID) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if _, ok := p.peers[id]; !ok {
		return
	}
	delete(p.peers, id)
	p.logger.Debug("peer removed from sync pool", "peer", id, "num_peers", len(p.peers))
}

// Evict removes and bans a peer in response to misbehaviour. PeerHandle
// implementations call it from Drop.
func (p *SyncPool) Evict(id types.NodeID) {
	p.banned.Add(id, struct{}{})
	p.Remove(id)
}

// AnyIdle returns some idle, registered peer, or nil if none is available.
// Map iteration order provides the load spread across peers.
func (p *SyncPool) AnyIdle() PeerHandle {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	for _, peer := range p.peers {
		if peer.IsIdle() {
			return peer
		}
	}
	return nil
}

// ByNodeID resolves an ID to its live handle, or nil.
func (p *SyncPool) ByNodeID(id types.NodeID) PeerHandle {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.peers[id]
}

// Len returns the number of registered peers.
func (p *SyncPool) Len() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.peers)
}

// Close drops every registered peer and refuses further Adds.
func (p *SyncPool) Close() {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return
	}
	p.closed = true
	peers := make([]PeerHandle, 0, len(p.peers))
	for _, peer := range p.peers {
		peers = append(peers, peer)
	}
	p.peers = make(map[types.NodeID]PeerHandle)
	p.mtx.Unlock()

	// sever connections outside the lock, Drop implementations may call
	// back into Remove
	for _, peer := range peers {
		peer.Drop()
	}
}
