// Package simulation provides an in-memory chain and peer network used to
// exercise the download pipeline without a real transport: deterministic
// generated blocks served by configurable honest, silent or corrupt peers.
package simulation

import (
	"fmt"
	mrand "math/rand"
	"time"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
	"github.com/ethersync/ethersync/types"
)

// Chain is a deterministic linear chain: a genesis anchor at height 0
// followed by downloadable blocks 1..Height(). The same seed yields the same
// chain.
type Chain struct {
	blocks []*types.Block
	byHash map[string]*types.Block
}

// GenerateChain builds a chain with the given head height.
func GenerateChain(height int64, seed int64) *Chain {
	rng := mrand.New(mrand.NewSource(seed))
	base := time.Unix(1500000000, 0).UTC()

	c := &Chain{
		blocks: make([]*types.Block, 0, height+1),
		byHash: make(map[string]*types.Block, height+1),
	}

	var parent tmbytes.HexBytes
	for h := int64(0); h <= height; h++ {
		header := &types.Header{
			Height:     h,
			Time:       base.Add(time.Duration(h) * 15 * time.Second),
			ParentHash: parent,
			DataHash:   randHash(rng),
			StateHash:  randHash(rng),
		}
		var txs [][]byte
		if h > 0 {
			txs = make([][]byte, rng.Intn(4))
			for i := range txs {
				txs[i] = []byte(fmt.Sprintf("tx-%d-%d", h, i))
			}
		}
		block := types.NewBlock(header, types.Data{Txs: txs})
		c.blocks = append(c.blocks, block)
		c.byHash[string(header.Hash())] = block
		parent = header.Hash()
	}
	return c
}

func randHash(rng *mrand.Rand) tmbytes.HexBytes {
	bz := make([]byte, types.HashByteLength)
	rng.Read(bz)
	return bz
}

// Height returns the chain's head height.
func (c *Chain) Height() int64 { return int64(len(c.blocks)) - 1 }

// Genesis returns the anchor header at height 0.
func (c *Chain) Genesis() *types.Header { return c.blocks[0].Header }

// Header returns the header at the given height, or nil.
func (c *Chain) Header(height int64) *types.Header {
	if height < 0 || height > c.Height() {
		return nil
	}
	return c.blocks[height].Header
}

// Headers serves a header range request against the chain, clipped to the
// chain's bounds.
func (c *Chain) Headers(start int64, count int, reverse bool) []*types.Header {
	headers := make([]*types.Header, 0, count)
	h := start
	for len(headers) < count {
		header := c.Header(h)
		if header == nil {
			break
		}
		headers = append(headers, header)
		if reverse {
			h--
		} else {
			h++
		}
	}
	return headers
}

// BlockByHash returns the block with the given header hash, or nil.
func (c *Chain) BlockByHash(hash tmbytes.HexBytes) *types.Block {
	return c.byHash[string(hash)]
}
