package blocksync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ethersync/ethersync/libs/log"
	"github.com/ethersync/ethersync/types"
)

// Whatever order header batches and block batches arrive in, the queue must
// emit every height exactly once, strictly ascending, with intact parent
// links.
func TestQueueEmissionOrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		head := int64(rapid.IntRange(1, 120).Draw(rt, "head").(int))
		chain := makeTestChain(head)
		q := NewSyncQueue(log.NewNopLogger(), chain.genesis(), head, true, time.Minute)
		peer := testNodeID()

		// slice the chain into batches and deliver them in random order
		var batches [][]*types.HeaderWrapper
		for from := int64(1); from <= head; {
			size := int64(rapid.IntRange(1, 24).Draw(rt, "batch_size").(int))
			to := from + size - 1
			if to > head {
				to = head
			}
			batches = append(batches, chain.wrap(peer, from, to))
			from = to + 1
		}
		order := rapid.SliceOfN(rapid.IntRange(0, 1<<30), len(batches), len(batches)).
			Draw(rt, "header_order").([]int)

		var emittedHeaders []*types.HeaderWrapper
		deliver := func(i int) {
			ready, err := q.AddHeaders(batches[i])
			require.NoError(rt, err)
			emittedHeaders = append(emittedHeaders, ready...)
		}
		for _, i := range permutation(order) {
			deliver(i)
		}
		// duplicates must not re-emit
		deliver(0)

		require.Len(rt, emittedHeaders, int(head))
		for i, hw := range emittedHeaders {
			require.EqualValues(rt, i+1, hw.Height())
			if i > 0 {
				require.True(rt, hw.Header.ParentHash.Equal(emittedHeaders[i-1].Hash()))
			}
		}

		// same for bodies
		var blockBatches [][]*types.Block
		for from := int64(1); from <= head; {
			size := int64(rapid.IntRange(1, 24).Draw(rt, "block_batch_size").(int))
			to := from + size - 1
			if to > head {
				to = head
			}
			blockBatches = append(blockBatches, chain.blockRange(from, to))
			from = to + 1
		}
		blockOrder := rapid.SliceOfN(rapid.IntRange(0, 1<<30), len(blockBatches), len(blockBatches)).
			Draw(rt, "block_order").([]int)

		var emittedBlocks []*types.Block
		for _, i := range permutation(blockOrder) {
			emittedBlocks = append(emittedBlocks, q.AddBlocks(blockBatches[i])...)
		}
		emittedBlocks = append(emittedBlocks, q.AddBlocks(blockBatches[0])...)

		require.Len(rt, emittedBlocks, int(head))
		for i, b := range emittedBlocks {
			require.EqualValues(rt, i+1, b.Height())
		}
	})
}

// permutation turns a slice of random keys into the order in which to visit
// indices 0..len-1, sorting indices by key.
func permutation(keys []int) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && keys[idx[j]] < keys[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}
