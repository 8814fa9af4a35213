package simulation

import (
	"sync"
	"sync/atomic"
	"time"

	tmbytes "github.com/ethersync/ethersync/libs/bytes"
	tmrand "github.com/ethersync/ethersync/libs/rand"
	"github.com/ethersync/ethersync/internal/blocksync"
	"github.com/ethersync/ethersync/types"
)

// Behavior selects how a simulated peer answers requests.
type Behavior int

const (
	// Honest serves correct data from its chain.
	Honest Behavior = iota
	// Silent accepts requests and never answers them.
	Silent
	// Corrupt serves header batches with a broken parent link.
	Corrupt
)

// Peer is an in-memory PeerHandle serving a Chain. A peer is idle while it
// has no outstanding request. Drop severs it and evicts it from the pool.
type Peer struct {
	id       types.NodeID
	chain    *Chain
	behavior Behavior
	latency  time.Duration
	pool     *blocksync.SyncPool

	inflight int32 // atomic
	dropped  int32 // atomic

	wg sync.WaitGroup
}

var _ blocksync.PeerHandle = (*Peer)(nil)

// NewPeer creates a simulated peer serving chain with the given behaviour
// and response latency. The pool is notified when the peer is dropped.
func NewPeer(chain *Chain, behavior Behavior, latency time.Duration, pool *blocksync.SyncPool) *Peer {
	id := types.NodeIDFromPubKeyBytes(tmrand.Bytes(types.NodeIDByteLength))
	return &Peer{
		id:       id,
		chain:    chain,
		behavior: behavior,
		latency:  latency,
		pool:     pool,
	}
}

func (p *Peer) NodeID() types.NodeID { return p.id }

func (p *Peer) IsIdle() bool {
	return atomic.LoadInt32(&p.dropped) == 0 && atomic.LoadInt32(&p.inflight) == 0
}

// Drop severs the peer. In-flight futures are abandoned, matching a closed
// connection.
func (p *Peer) Drop() {
	if atomic.CompareAndSwapInt32(&p.dropped, 0, 1) {
		p.pool.Evict(p.id)
	}
}

// Wait blocks until all response goroutines have finished. Used by tests and
// the simulator for clean teardown.
func (p *Peer) Wait() { p.wg.Wait() }

func (p *Peer) SendGetBlockHeaders(start int64, count int, reverse bool) <-chan blocksync.HeadersResponse {
	return p.serveHeaders(func() []*types.Header {
		return p.chain.Headers(start, count, reverse)
	})
}

func (p *Peer) SendGetBlockHeadersByHash(hash tmbytes.HexBytes, count, step int, reverse bool) <-chan blocksync.HeadersResponse {
	return p.serveHeaders(func() []*types.Header {
		anchor := p.chain.BlockByHash(hash)
		if anchor == nil {
			return nil
		}
		if step == 0 {
			step = 1
		}
		headers := make([]*types.Header, 0, count)
		h := anchor.Height()
		for len(headers) < count {
			header := p.chain.Header(h)
			if header == nil {
				break
			}
			headers = append(headers, header)
			if reverse {
				h -= int64(step)
			} else {
				h += int64(step)
			}
		}
		return headers
	})
}

func (p *Peer) serveHeaders(load func() []*types.Header) <-chan blocksync.HeadersResponse {
	if atomic.LoadInt32(&p.dropped) == 1 {
		return nil
	}
	future := make(chan blocksync.HeadersResponse, 1)
	atomic.AddInt32(&p.inflight, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		time.Sleep(p.latency)
		defer atomic.AddInt32(&p.inflight, -1)

		switch p.behavior {
		case Silent:
			// never resolves; the peer becomes idle again but useless
		case Corrupt:
			headers := corruptBatch(load())
			future <- blocksync.HeadersResponse{Headers: headers}
		default:
			future <- blocksync.HeadersResponse{Headers: load()}
		}
	}()
	return future
}

func (p *Peer) SendGetBlockBodies(headers []*types.HeaderWrapper) <-chan blocksync.BlocksResponse {
	if atomic.LoadInt32(&p.dropped) == 1 {
		return nil
	}
	future := make(chan blocksync.BlocksResponse, 1)
	atomic.AddInt32(&p.inflight, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		time.Sleep(p.latency)
		defer atomic.AddInt32(&p.inflight, -1)

		if p.behavior == Silent {
			return
		}
		blocks := make([]*types.Block, 0, len(headers))
		for _, hw := range headers {
			if b := p.chain.BlockByHash(hw.Hash()); b != nil {
				blocks = append(blocks, b)
			}
		}
		future <- blocksync.BlocksResponse{Blocks: blocks}
	}()
	return future
}

// corruptBatch rewrites the parent hash in the middle of the batch, breaking
// the hash chain the way a malicious peer would.
func corruptBatch(headers []*types.Header) []*types.Header {
	if len(headers) < 2 {
		return headers
	}
	out := make([]*types.Header, len(headers))
	copy(out, headers)

	mid := *out[len(out)/2]
	mid.ParentHash = tmrand.Bytes(types.HashByteLength)
	out[len(out)/2] = &mid
	return out
}
