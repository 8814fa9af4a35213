package blocksync

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ethersync/ethersync/config"
	"github.com/ethersync/ethersync/libs/latch"
	"github.com/ethersync/ethersync/libs/log"
	"github.com/ethersync/ethersync/libs/service"
	"github.com/ethersync/ethersync/types"
)

// freshTipHeaders is the largest single-shard size for which bodies are
// re-requested from the peers that delivered the headers. Near the chain
// head that peer is the most likely to already hold the body.
const freshTipHeaders = 3

// Importer is the downstream consumer of the pipeline. PushHeaders and
// PushBlocks run on completion callback goroutines and must be fast or hand
// off internally.
type Importer interface {
	// PushHeaders receives each newly contiguous run of headers, strictly
	// ascending across calls.
	PushHeaders(headers []*types.HeaderWrapper)

	// PushBlocks receives each newly contiguous run of blocks, strictly
	// ascending across calls.
	PushBlocks(blocks []*types.BlockWrapper)

	// BlockQueueFreeSize is the number of additional blocks the importer is
	// willing to hold; the body loop treats it as advisory truth for
	// backpressure.
	BlockQueueFreeSize() int

	// IsSyncDone reports whether the node is caught up with the network;
	// the header loop then polls slowly.
	IsSyncDone() bool

	// FinishDownload is the idempotent terminal hook, invoked once after
	// the final push.
	FinishDownload()
}

// Downloader owns the two download workers and their lifecycle. Start spawns
// the enabled loops, Stop interrupts them, Wait blocks until the pipeline
// has shut down.
type Downloader struct {
	service.BaseService
	logger log.Logger

	cfg       *config.SyncConfig
	queue     SyncQueue
	pool      PeerPool
	validator HeaderValidator
	importer  Importer
	metrics   *Metrics

	// serializes queue mutation + push pairs so sinks observe ascending
	// heights
	emitMtx sync.Mutex

	headersLatch *latch.Latch
	blocksLatch  *latch.Latch

	headersDone  *atomicBool
	downloadDone *atomicBool
	finishOnce   sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDownloader wires a download pipeline. The queue, pool, validator and
// importer are injected; cfg selects which of the two workers run and their
// pacing.
func NewDownloader(
	logger log.Logger,
	cfg *config.SyncConfig,
	queue SyncQueue,
	pool PeerPool,
	validator HeaderValidator,
	importer Importer,
	metrics *Metrics,
) *Downloader {
	d := &Downloader{
		logger:       logger,
		cfg:          cfg,
		queue:        queue,
		pool:         pool,
		validator:    validator,
		importer:     importer,
		metrics:      metrics,
		headersLatch: latch.New(),
		blocksLatch:  latch.New(),
		headersDone:  new(atomicBool),
		downloadDone: new(atomicBool),
	}
	d.BaseService = *service.NewBaseService(logger, "Downloader", d)
	return d
}

// OnStart starts the enabled worker loops.
func (d *Downloader) OnStart(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	if d.cfg.HeadersDownload {
		d.wg.Add(1)
		go d.headerRetrieveLoop(ctx)
	}
	if d.cfg.BlockBodiesDownload {
		d.wg.Add(1)
		go d.blockRetrieveLoop(ctx)
	}
	return nil
}

// OnStop interrupts both workers and blocks until they have exited. Late
// completion callbacks observe the canceled context and discard their
// results.
func (d *Downloader) OnStop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Close stops the pipeline and closes the underlying pool, when the pool
// supports closing.
func (d *Downloader) Close() {
	if closer, ok := d.pool.(interface{ Close() }); ok {
		closer.Close()
	}
	d.Stop()
}

// IsDownloadComplete reports whether the terminal push has happened.
func (d *Downloader) IsDownloadComplete() bool { return d.downloadDone.IsSet() }

// HeadersDownloadComplete reports whether the header chain is fully
// assembled.
func (d *Downloader) HeadersDownloadComplete() bool { return d.headersDone.IsSet() }

func (d *Downloader) finish() {
	d.finishOnce.Do(func() {
		// The queue reaches its terminal state inside an add+push pair held
		// under emitMtx; wait for that pair so the final push comes first.
		d.emitMtx.Lock()
		d.emitMtx.Unlock()
		d.importer.FinishDownload()
		d.downloadDone.Set()
	})
}

//-----------------------------------------------------------------------------
// header retrieval

func (d *Downloader) headerRetrieveLoop(ctx context.Context) {
	defer d.wg.Done()

	var pending []*HeadersRequest
	for ctx.Err() == nil {
		if done := d.headerIteration(ctx, &pending); done {
			return
		}
	}
}

func (d *Downloader) headerIteration(ctx context.Context, pending *[]*HeadersRequest) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("unexpected failure in header retrieval",
				"err", r, "stack", string(debug.Stack()))
		}
	}()

	if len(*pending) == 0 {
		reqs, complete := d.queue.RequestHeaders(MaxInRequest, d.cfg.MaxHeaderRequests, d.cfg.HeaderQueueLimit)
		if complete {
			d.logger.Info("headers download complete", "height", d.queue.TipHeight())
			d.headersDone.Set()
			if !d.cfg.BlockBodiesDownload {
				d.finish()
			}
			return true
		}
		if len(reqs) > 0 {
			d.logger.Debug("new header requests", "count", len(reqs),
				"first", reqs[0], "last", reqs[len(reqs)-1])
		}
		*pending = reqs
	}

	dispatched := 0
	rest := make([]*HeadersRequest, 0, len(*pending))
	for i, req := range *pending {
		peer := d.pool.AnyIdle()
		if peer == nil {
			d.logger.Debug("header retrieval: no idle peers")
			rest = append(rest, (*pending)[i:]...)
			break
		}

		var future <-chan HeadersResponse
		if req.ByHash() {
			future = peer.SendGetBlockHeadersByHash(req.Hash, req.Count, req.Step, req.Reverse)
		} else {
			future = peer.SendGetBlockHeaders(req.Start, req.Count, req.Reverse)
		}
		if future == nil {
			// peer vanished between selection and send, keep the request
			rest = append(rest, req)
			continue
		}

		d.logger.Debug("requesting headers", "request", req, "peer", peer.NodeID())
		d.metrics.HeaderRequests.Add(1)
		dispatched++
		go d.receiveHeaders(ctx, peer.NodeID(), future)
	}
	*pending = rest

	// Re-enter dispatch once roughly half of the outstanding requests have
	// answered; waiting for all of them would bound throughput to the
	// slowest peer.
	d.headersLatch.Arm(maxInt(dispatched/2, 1))

	timeout := d.cfg.HeaderLatchTimeout
	if d.importer.IsSyncDone() {
		timeout = d.cfg.SteadyHeaderLatchTimeout
	}
	d.headersLatch.Wait(ctx, timeout)
	return false
}

func (d *Downloader) receiveHeaders(ctx context.Context, nodeID types.NodeID, future <-chan HeadersResponse) {
	select {
	case <-ctx.Done():
		return
	case resp, ok := <-future:
		if !ok {
			resp.Err = errPeerGone
		}
		switch {
		case resp.Err != nil:
			d.logger.Debug("error receiving headers, dropping the peer",
				"peer", nodeID, "err", resp.Err)
			d.dropPeer(nodeID)
		default:
			if err := d.validateAndAddHeaders(resp.Headers, nodeID); err != nil {
				d.logger.Debug("received headers validation failed, dropping the peer",
					"peer", nodeID, "err", err)
				d.dropPeer(nodeID)
			}
		}
		d.headersLatch.CountDown()
	}
}

// validateAndAddHeaders runs each header through the injected validator,
// rejecting the batch on the first failure, then feeds the batch into the
// queue and pushes any newly contiguous prefix downstream.
func (d *Downloader) validateAndAddHeaders(headers []*types.Header, nodeID types.NodeID) error {
	if len(headers) == 0 {
		return nil
	}

	wrappers := make([]*types.HeaderWrapper, 0, len(headers))
	for _, header := range headers {
		if err := d.validator.Validate(header); err != nil {
			return err
		}
		wrappers = append(wrappers, types.NewHeaderWrapper(header, nodeID))
	}

	d.emitMtx.Lock()
	ready, err := d.queue.AddHeaders(wrappers)
	if err == nil && len(ready) > 0 {
		d.importer.PushHeaders(ready)
		d.metrics.TipHeight.Set(float64(ready[len(ready)-1].Height()))
	}
	d.emitMtx.Unlock()
	if err != nil {
		return err
	}

	d.metrics.HeadersReceived.Add(float64(len(headers)))
	d.metrics.ResidentHeaders.Set(float64(d.queue.ResidentHeaders()))
	d.logger.Debug("headers added", "count", len(headers), "ready", len(ready), "peer", nodeID)
	return nil
}

//-----------------------------------------------------------------------------
// block retrieval

func (d *Downloader) blockRetrieveLoop(ctx context.Context) {
	defer d.wg.Done()

	var pending []*BlocksRequest
	for ctx.Err() == nil {
		if done := d.blockIteration(ctx, &pending); done {
			return
		}
	}
}

func (d *Downloader) blockIteration(ctx context.Context, pending *[]*BlocksRequest) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("unexpected failure in block retrieval",
				"err", r, "stack", string(debug.Stack()))
		}
	}()

	if len(*pending) == 0 {
		*pending = d.queue.RequestBlocks(d.cfg.BulkBodyRequestLimit).Split(MaxInRequest)
	}

	if len(*pending) == 0 && d.headersDone.IsSet() {
		d.logger.Info("block download complete", "height", d.queue.BlockHeight())
		d.finish()
		return true
	}

	free := d.importer.BlockQueueFreeSize()
	if free <= MaxInRequest {
		d.logger.Debug("block retrieval: import queue is full", "free", free)
		d.blocksLatch.Arm(1)
		d.blocksLatch.Wait(ctx, d.cfg.BodyLatchTimeout)
		return false
	}

	// Fresh blocks are better re-requested from the header senders first,
	// for more chances to receive the body promptly. These dispatches are
	// off-budget and do not consume the shard.
	if len(*pending) == 1 && len((*pending)[0].Headers) <= freshTipHeaders {
		for _, hw := range (*pending)[0].Headers {
			peer := d.pool.ByNodeID(hw.NodeID)
			if peer == nil {
				continue
			}
			if future := peer.SendGetBlockBodies([]*types.HeaderWrapper{hw}); future != nil {
				d.metrics.BodyRequests.Add(1)
				go d.receiveBlocks(ctx, peer.NodeID(), future)
			}
		}
	}

	maxBlocks := MaxInRequest * minInt(free/MaxInRequest, d.cfg.MaxBodyRequestsPerCycle)
	dispatched := 0
	requested := 0
	rest := make([]*BlocksRequest, 0, len(*pending))
	for i, shard := range *pending {
		if requested >= maxBlocks {
			rest = append(rest, (*pending)[i:]...)
			break
		}
		peer := d.pool.AnyIdle()
		if peer == nil {
			d.logger.Debug("block retrieval: no idle peers")
			rest = append(rest, (*pending)[i:]...)
			break
		}

		future := peer.SendGetBlockBodies(shard.Headers)
		requested += len(shard.Headers)
		if future == nil {
			rest = append(rest, shard)
			continue
		}

		d.logger.Debug("requesting blocks", "request", shard, "peer", peer.NodeID())
		d.metrics.BodyRequests.Add(1)
		dispatched++
		go d.receiveBlocks(ctx, peer.NodeID(), future)
	}
	*pending = rest

	// The -2 lets the loop move on once most callbacks are in instead of
	// waiting out the stragglers.
	d.blocksLatch.Arm(maxInt(dispatched-2, 1))
	d.blocksLatch.Wait(ctx, d.cfg.BodyLatchTimeout)
	return false
}

func (d *Downloader) receiveBlocks(ctx context.Context, nodeID types.NodeID, future <-chan BlocksResponse) {
	select {
	case <-ctx.Done():
		return
	case resp, ok := <-future:
		if !ok {
			resp.Err = errPeerGone
		}
		if resp.Err != nil {
			d.logger.Debug("error receiving blocks, dropping the peer",
				"peer", nodeID, "err", resp.Err)
			d.dropPeer(nodeID)
		} else {
			d.addBlocks(resp.Blocks, nodeID)
		}
		d.blocksLatch.CountDown()
	}
}

// addBlocks feeds received bodies into the queue and pushes the newly
// contiguous run downstream, attributed to the delivering peer.
func (d *Downloader) addBlocks(blocks []*types.Block, nodeID types.NodeID) {
	if len(blocks) == 0 {
		return
	}

	d.emitMtx.Lock()
	ready := d.queue.AddBlocks(blocks)
	if len(ready) > 0 {
		wrappers := make([]*types.BlockWrapper, 0, len(ready))
		for _, b := range ready {
			wrappers = append(wrappers, types.NewBlockWrapper(b, nodeID))
		}
		d.importer.PushBlocks(wrappers)
		d.metrics.BlockHeight.Set(float64(ready[len(ready)-1].Height()))
	}
	d.emitMtx.Unlock()

	d.metrics.BlocksReceived.Add(float64(len(blocks)))
	d.logger.Debug("blocks added", "count", len(blocks), "ready", len(ready), "peer", nodeID)
}

func (d *Downloader) dropPeer(nodeID types.NodeID) {
	d.metrics.PeersDropped.Add(1)
	if peer := d.pool.ByNodeID(nodeID); peer != nil {
		peer.Drop()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// atomicBool is an atomic Boolean, safe for concurrent use by multiple
// goroutines.
type atomicBool int32

// Set sets the Boolean to true.
func (ab *atomicBool) Set() { atomic.StoreInt32((*int32)(ab), 1) }

// IsSet returns whether the Boolean is true.
func (ab *atomicBool) IsSet() bool { return atomic.LoadInt32((*int32)(ab))&1 == 1 }
