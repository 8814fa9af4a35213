package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethersync/ethersync/internal/blocksync"
	"github.com/ethersync/ethersync/libs/log"
)

func TestGenerateChainDeterministic(t *testing.T) {
	a := GenerateChain(50, 7)
	b := GenerateChain(50, 7)
	c := GenerateChain(50, 8)

	require.EqualValues(t, 50, a.Height())
	require.Equal(t, a.Header(25).Hash(), b.Header(25).Hash())
	require.NotEqual(t, a.Header(25).Hash(), c.Header(25).Hash())

	// parent links hold throughout
	for h := int64(1); h <= a.Height(); h++ {
		require.Equal(t, a.Header(h-1).Hash(), a.Header(h).ParentHash)
	}
}

func TestChainHeaders(t *testing.T) {
	c := GenerateChain(20, 1)

	headers := c.Headers(5, 4, false)
	require.Len(t, headers, 4)
	require.EqualValues(t, 5, headers[0].Height)
	require.EqualValues(t, 8, headers[3].Height)

	headers = c.Headers(5, 4, true)
	require.EqualValues(t, 5, headers[0].Height)
	require.EqualValues(t, 2, headers[3].Height)

	// clipped at the head
	headers = c.Headers(18, 10, false)
	require.Len(t, headers, 3)
}

func TestHonestPeerServesChain(t *testing.T) {
	chain := GenerateChain(30, 1)
	pool := blocksync.NewSyncPool(log.NewNopLogger())
	peer := NewPeer(chain, Honest, time.Millisecond, pool)
	require.NoError(t, pool.Add(peer))

	future := peer.SendGetBlockHeaders(1, 10, false)
	require.NotNil(t, future)

	select {
	case resp := <-future:
		require.NoError(t, resp.Err)
		require.Len(t, resp.Headers, 10)
	case <-time.After(time.Second):
		t.Fatal("honest peer did not answer")
	}
	peer.Wait()
	require.True(t, peer.IsIdle())
}

func TestCorruptPeerBreaksChain(t *testing.T) {
	chain := GenerateChain(30, 1)
	pool := blocksync.NewSyncPool(log.NewNopLogger())
	peer := NewPeer(chain, Corrupt, time.Millisecond, pool)

	future := peer.SendGetBlockHeaders(1, 10, false)
	resp := <-future

	broken := false
	for i := 1; i < len(resp.Headers); i++ {
		if !resp.Headers[i].ParentHash.Equal(resp.Headers[i-1].Hash()) {
			broken = true
		}
	}
	require.True(t, broken, "corrupt peer must break at least one parent link")
}

func TestDroppedPeerIsEvicted(t *testing.T) {
	chain := GenerateChain(10, 1)
	pool := blocksync.NewSyncPool(log.NewNopLogger())
	peer := NewPeer(chain, Honest, time.Millisecond, pool)
	require.NoError(t, pool.Add(peer))

	peer.Drop()
	require.Nil(t, pool.ByNodeID(peer.NodeID()))
	require.Nil(t, peer.SendGetBlockHeaders(1, 5, false))
	require.ErrorIs(t, pool.Add(peer), blocksync.ErrPeerBanned)
}
