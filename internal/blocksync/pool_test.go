package blocksync

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
	"github.com/ethersync/ethersync/libs/log"
	"github.com/ethersync/ethersync/types"
)

// poolPeer is a minimal PeerHandle for pool tests; its sends are never used.
type poolPeer struct {
	id      types.NodeID
	pool    *SyncPool
	idle    int32
	dropped int32
}

func newPoolPeer(pool *SyncPool, idle bool) *poolPeer {
	p := &poolPeer{id: testNodeID(), pool: pool}
	if idle {
		p.idle = 1
	}
	return p
}

func (p *poolPeer) NodeID() types.NodeID { return p.id }
func (p *poolPeer) IsIdle() bool         { return atomic.LoadInt32(&p.idle) == 1 }

func (p *poolPeer) Drop() {
	if atomic.CompareAndSwapInt32(&p.dropped, 0, 1) {
		p.pool.Evict(p.id)
	}
}

func (p *poolPeer) SendGetBlockHeaders(start int64, count int, reverse bool) <-chan HeadersResponse {
	return nil
}

func (p *poolPeer) SendGetBlockHeadersByHash(hash tmbytes.HexBytes, count, step int, reverse bool) <-chan HeadersResponse {
	return nil
}

func (p *poolPeer) SendGetBlockBodies(headers []*types.HeaderWrapper) <-chan BlocksResponse {
	return nil
}

func TestSyncPoolAddRemove(t *testing.T) {
	pool := NewSyncPool(log.NewNopLogger())
	peer := newPoolPeer(pool, true)

	require.NoError(t, pool.Add(peer))
	require.Equal(t, 1, pool.Len())
	require.Equal(t, peer, pool.ByNodeID(peer.id))

	// re-adding the same peer is a no-op
	require.NoError(t, pool.Add(peer))
	require.Equal(t, 1, pool.Len())

	pool.Remove(peer.id)
	require.Equal(t, 0, pool.Len())
	require.Nil(t, pool.ByNodeID(peer.id))

	// a plain removal is not a ban
	require.NoError(t, pool.Add(peer))
}

func TestSyncPoolAnyIdle(t *testing.T) {
	pool := NewSyncPool(log.NewNopLogger())

	require.Nil(t, pool.AnyIdle())

	busy := newPoolPeer(pool, false)
	require.NoError(t, pool.Add(busy))
	require.Nil(t, pool.AnyIdle())

	idle := newPoolPeer(pool, true)
	require.NoError(t, pool.Add(idle))
	require.Equal(t, idle, pool.AnyIdle())

	atomic.StoreInt32(&busy.idle, 1)
	atomic.StoreInt32(&idle.idle, 0)
	require.Equal(t, busy, pool.AnyIdle())
}

func TestSyncPoolEvictBans(t *testing.T) {
	pool := NewSyncPool(log.NewNopLogger())
	peer := newPoolPeer(pool, true)

	require.NoError(t, pool.Add(peer))
	peer.Drop()

	require.Equal(t, 0, pool.Len())
	require.ErrorIs(t, pool.Add(peer), ErrPeerBanned)
	require.Nil(t, pool.AnyIdle())
}

func TestSyncPoolClose(t *testing.T) {
	pool := NewSyncPool(log.NewNopLogger())
	peers := make([]*poolPeer, 3)
	for i := range peers {
		peers[i] = newPoolPeer(pool, true)
		require.NoError(t, pool.Add(peers[i]))
	}

	pool.Close()

	require.Equal(t, 0, pool.Len())
	for _, p := range peers {
		require.EqualValues(t, 1, atomic.LoadInt32(&p.dropped))
	}
	require.ErrorIs(t, pool.Add(newPoolPeer(pool, true)), ErrPoolClosed)

	// closing twice is safe
	pool.Close()
}

func TestSyncPoolConcurrentAccess(t *testing.T) {
	pool := NewSyncPool(log.NewNopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				peer := newPoolPeer(pool, j%2 == 0)
				if err := pool.Add(peer); err != nil {
					continue
				}
				pool.AnyIdle()
				pool.ByNodeID(peer.NodeID())
				if j%3 == 0 {
					peer.Drop()
				} else {
					pool.Remove(peer.NodeID())
				}
			}
		}()
	}
	wg.Wait()
}
