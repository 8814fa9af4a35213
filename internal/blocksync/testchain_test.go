package blocksync

import (
	"fmt"
	"time"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
	tmrand "github.com/ethersync/ethersync/libs/rand"
	"github.com/ethersync/ethersync/types"
)

// testChain is a deterministic chain with a genesis anchor at height 0 and
// downloadable blocks 1..head.
type testChain struct {
	headers []*types.Header
	blocks  map[string]*types.Block
}

func makeTestChain(head int64) *testChain {
	c := &testChain{
		headers: make([]*types.Header, 0, head+1),
		blocks:  make(map[string]*types.Block, head+1),
	}
	var parent tmbytes.HexBytes
	for h := int64(0); h <= head; h++ {
		header := &types.Header{
			Height:     h,
			Time:       time.Unix(1500000000, 0).UTC().Add(time.Duration(h) * 15 * time.Second),
			ParentHash: parent,
			DataHash:   tmrand.Bytes(types.HashByteLength),
			StateHash:  tmrand.Bytes(types.HashByteLength),
		}
		block := types.NewBlock(header, types.Data{Txs: [][]byte{[]byte(fmt.Sprintf("tx-%d", h))}})
		c.headers = append(c.headers, header)
		c.blocks[string(header.Hash())] = block
		parent = header.Hash()
	}
	return c
}

func (c *testChain) head() int64 { return int64(len(c.headers)) - 1 }

func (c *testChain) genesis() *types.Header { return c.headers[0] }

func (c *testChain) header(height int64) *types.Header {
	if height < 0 || height > c.head() {
		return nil
	}
	return c.headers[height]
}

func (c *testChain) headerRange(start int64, count int, reverse bool) []*types.Header {
	out := make([]*types.Header, 0, count)
	h := start
	for len(out) < count {
		header := c.header(h)
		if header == nil {
			break
		}
		out = append(out, header)
		if reverse {
			h--
		} else {
			h++
		}
	}
	return out
}

func (c *testChain) wrap(nodeID types.NodeID, from, to int64) []*types.HeaderWrapper {
	out := make([]*types.HeaderWrapper, 0, to-from+1)
	for h := from; h <= to; h++ {
		out = append(out, types.NewHeaderWrapper(c.header(h), nodeID))
	}
	return out
}

func (c *testChain) blockAt(height int64) *types.Block {
	return c.blocks[string(c.header(height).Hash())]
}

func (c *testChain) blockRange(from, to int64) []*types.Block {
	out := make([]*types.Block, 0, to-from+1)
	for h := from; h <= to; h++ {
		out = append(out, c.blockAt(h))
	}
	return out
}

func testNodeID() types.NodeID {
	return types.NodeIDFromPubKeyBytes(tmrand.Bytes(types.NodeIDByteLength))
}
