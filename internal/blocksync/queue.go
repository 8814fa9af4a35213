package blocksync

import (
	"sync"
	"time"

	"github.com/ethersync/ethersync/libs/log"
	"github.com/ethersync/ethersync/types"
)

// SyncQueue is the reassembly buffer shared by the two download workers. It
// schedules gap-filling header requests, absorbs out-of-order responses and
// emits the contiguous prefix of headers and blocks as it grows.
//
// All operations are short, non-blocking and safe for concurrent use.
type SyncQueue interface {
	// RequestHeaders returns up to maxRequests header requests of at most
	// maxPerRequest headers each, covering heights missing between the tip
	// and the target. The second return is true once the header chain is
	// complete; the queue then stays terminal. A nil slice with a false
	// flag means no work is issuable right now (requests in flight, or the
	// resident header count reached maxTotalHeaders) and the caller should
	// retry later.
	RequestHeaders(maxPerRequest, maxRequests, maxTotalHeaders int) ([]*HeadersRequest, bool)

	// AddHeaders absorbs a batch of received headers after structural
	// validation and returns the prefix newly made contiguous with the
	// tip, in ascending order. Non-contiguous headers are buffered as
	// islands. A validation failure rejects the whole batch and returns a
	// *BadBatchError attributing it to the sender.
	AddHeaders(headers []*types.HeaderWrapper) ([]*types.HeaderWrapper, error)

	// RequestBlocks returns a request covering up to max headers whose
	// bodies are still missing, in ascending order. Headers with a request
	// already in flight are included again: reissuing to a second peer is
	// the recovery path for an unresponsive first one, duplicates are
	// dropped on arrival.
	RequestBlocks(max int) *BlocksRequest

	// AddBlocks absorbs received bodies, keyed by header hash, and returns
	// the newly contiguous run of blocks in ascending order.
	AddBlocks(blocks []*types.Block) []*types.Block

	// TipHeight is the height of the last contiguously assembled header.
	TipHeight() int64

	// BlockHeight is the height of the last emitted block.
	BlockHeight() int64

	// ResidentHeaders is the number of headers currently held by the
	// queue, islands and headers awaiting bodies included.
	ResidentHeaders() int
}

type queuedHeader struct {
	wrapper *types.HeaderWrapper
	block   *types.Block
}

type syncQueue struct {
	logger log.Logger

	mtx sync.Mutex

	// heights [blockHeight+1 .. tipHeight] hold the single canonical header
	// awaiting its body; heights above tipHeight hold competing island
	// candidates keyed by hash.
	headers map[int64]map[string]*queuedHeader

	tipHeight   int64
	tipHash     string
	blockHeight int64
	target      int64

	// count of buffered headers above the tip
	islandHeaders int

	// heights covered by issued header requests, with expiry; expired
	// reservations are reissued
	reserved       map[int64]time.Time
	reserveTimeout time.Duration

	fetchBodies bool
}

var _ SyncQueue = (*syncQueue)(nil)

// NewSyncQueue creates a reassembly queue anchored at the given tip header
// (the last block known locally) targeting the given chain head height. With
// fetchBodies disabled, emitted headers are not retained and RequestBlocks
// always returns an empty request.
func NewSyncQueue(
	logger log.Logger,
	tip *types.Header,
	targetHeight int64,
	fetchBodies bool,
	reserveTimeout time.Duration,
) SyncQueue {
	return &syncQueue{
		logger:         logger,
		headers:        make(map[int64]map[string]*queuedHeader),
		tipHeight:      tip.Height,
		tipHash:        string(tip.Hash()),
		blockHeight:    tip.Height,
		target:         targetHeight,
		reserved:       make(map[int64]time.Time),
		reserveTimeout: reserveTimeout,
		fetchBodies:    fetchBodies,
	}
}

func (q *syncQueue) TipHeight() int64 {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.tipHeight
}

func (q *syncQueue) BlockHeight() int64 {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.blockHeight
}

func (q *syncQueue) ResidentHeaders() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.residentHeaders()
}

// residentHeaders counts islands plus canonical headers awaiting bodies.
// Callers must hold q.mtx.
func (q *syncQueue) residentHeaders() int {
	return q.islandHeaders + int(q.tipHeight-q.blockHeight)
}

func (q *syncQueue) RequestHeaders(maxPerRequest, maxRequests, maxTotalHeaders int) ([]*HeadersRequest, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.tipHeight >= q.target {
		return nil, true
	}

	now := time.Now()
	budget := maxTotalHeaders - q.residentHeaders() - q.activeReservations(now)
	if budget <= 0 {
		return nil, false
	}

	window := q.tipHeight + int64(maxTotalHeaders)
	if window > q.target {
		window = q.target
	}

	var reqs []*HeadersRequest
	h := q.tipHeight + 1
	for h <= window && len(reqs) < maxRequests && budget > 0 {
		if q.isKnown(h) || q.isReserved(h, now) {
			h++
			continue
		}
		start := h
		count := 0
		for h <= window && count < maxPerRequest && budget > 0 && !q.isKnown(h) && !q.isReserved(h, now) {
			q.reserved[h] = now.Add(q.reserveTimeout)
			count++
			budget--
			h++
		}
		reqs = append(reqs, NewRangeRequest(start, count, false))
	}
	return reqs, false
}

func (q *syncQueue) isKnown(height int64) bool {
	return len(q.headers[height]) > 0
}

func (q *syncQueue) isReserved(height int64, now time.Time) bool {
	deadline, ok := q.reserved[height]
	if !ok {
		return false
	}
	if now.After(deadline) {
		delete(q.reserved, height)
		return false
	}
	return true
}

func (q *syncQueue) activeReservations(now time.Time) int {
	n := 0
	for h, deadline := range q.reserved {
		if now.After(deadline) || h <= q.tipHeight {
			delete(q.reserved, h)
			continue
		}
		n++
	}
	return n
}

func (q *syncQueue) AddHeaders(headers []*types.HeaderWrapper) ([]*types.HeaderWrapper, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	batch := normalizeBatch(headers)
	if err := validateBatch(batch); err != nil {
		q.mtx.Lock()
		// free the covered heights so the range is promptly reissued
		for _, hw := range batch {
			delete(q.reserved, hw.Height())
		}
		q.mtx.Unlock()
		return nil, err
	}

	q.mtx.Lock()
	defer q.mtx.Unlock()

	for _, hw := range batch {
		height := hw.Height()
		delete(q.reserved, height)

		if height <= q.tipHeight {
			continue
		}
		if q.target > 0 && height > q.target {
			continue
		}
		key := string(hw.Hash())
		cands := q.headers[height]
		if cands == nil {
			cands = make(map[string]*queuedHeader)
			q.headers[height] = cands
		}
		if _, ok := cands[key]; ok {
			continue
		}
		cands[key] = &queuedHeader{wrapper: hw}
		q.islandHeaders++
	}

	return q.advanceTip(), nil
}

// advanceTip extends the contiguous chain as far as the buffered headers
// allow and returns the emitted run. Competing candidates at an absorbed
// height are islands of a branch that can no longer reach the tip; they are
// discarded. Callers must hold q.mtx.
func (q *syncQueue) advanceTip() []*types.HeaderWrapper {
	var ready []*types.HeaderWrapper
	for {
		cands := q.headers[q.tipHeight+1]
		var next *queuedHeader
		for _, c := range cands {
			if string(c.wrapper.Header.ParentHash) == q.tipHash {
				next = c
				break
			}
		}
		if next == nil {
			break
		}

		nextKey := string(next.wrapper.Hash())
		for key := range cands {
			if key != nextKey {
				delete(cands, key)
				q.islandHeaders--
			}
		}

		q.tipHeight++
		q.tipHash = nextKey
		q.islandHeaders--
		delete(q.reserved, q.tipHeight)
		ready = append(ready, next.wrapper)

		if q.fetchBodies {
			// the canonical header stays resident until its body is emitted
		} else {
			delete(q.headers, q.tipHeight)
			q.blockHeight = q.tipHeight
		}
	}

	if len(ready) > 0 {
		q.logger.Debug("header chain extended",
			"from", ready[0].Height(), "to", q.tipHeight, "islands", q.islandHeaders)
	}
	return ready
}

// normalizeBatch returns the batch in ascending height order. Responses to
// reverse requests arrive descending and are flipped.
func normalizeBatch(headers []*types.HeaderWrapper) []*types.HeaderWrapper {
	batch := make([]*types.HeaderWrapper, len(headers))
	copy(batch, headers)
	if len(batch) > 1 && batch[0].Header.Height > batch[len(batch)-1].Header.Height {
		for i, j := 0, len(batch)-1; i < j; i, j = i+1, j-1 {
			batch[i], batch[j] = batch[j], batch[i]
		}
	}
	return batch
}

// validateBatch checks the structural invariants of a normalized batch:
// uniformly spaced heights, and intact parent links for dense (step 1)
// batches. Sparse skip-list batches cannot be link-checked here; their links
// are verified against the filled-in gaps during tip advancement.
func validateBatch(batch []*types.HeaderWrapper) error {
	if len(batch) < 2 {
		return nil
	}
	step := batch[1].Height() - batch[0].Height()
	if step <= 0 {
		return &BadBatchError{NodeID: batch[1].NodeID, Height: batch[1].Height(), Reason: errBatchNotMonotonic}
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].Height()-batch[i-1].Height() != step {
			return &BadBatchError{NodeID: batch[i].NodeID, Height: batch[i].Height(), Reason: errBatchNotMonotonic}
		}
		if step == 1 && !batch[i].Header.ParentHash.Equal(batch[i-1].Hash()) {
			return &BadBatchError{NodeID: batch[i].NodeID, Height: batch[i].Height(), Reason: errBatchBrokenLink}
		}
	}
	return nil
}

func (q *syncQueue) RequestBlocks(max int) *BlocksRequest {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if !q.fetchBodies {
		return &BlocksRequest{}
	}

	var hdrs []*types.HeaderWrapper
	for h := q.blockHeight + 1; h <= q.tipHeight && len(hdrs) < max; h++ {
		for _, qh := range q.headers[h] {
			if qh.block == nil {
				hdrs = append(hdrs, qh.wrapper)
			}
		}
	}
	return &BlocksRequest{Headers: hdrs}
}

func (q *syncQueue) AddBlocks(blocks []*types.Block) []*types.Block {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	for _, b := range blocks {
		if b == nil || b.Header == nil {
			continue
		}
		height := b.Height()
		if height <= q.blockHeight || height > q.tipHeight {
			continue
		}
		qh := q.headers[height][string(b.Hash())]
		if qh == nil || qh.block != nil {
			continue
		}
		qh.block = b
	}

	var ready []*types.Block
	for q.blockHeight < q.tipHeight {
		var qh *queuedHeader
		for _, c := range q.headers[q.blockHeight+1] {
			qh = c
		}
		if qh == nil || qh.block == nil {
			break
		}
		ready = append(ready, qh.block)
		delete(q.headers, q.blockHeight+1)
		q.blockHeight++
	}

	if len(ready) > 0 {
		q.logger.Debug("block run extended",
			"from", ready[0].Height(), "to", q.blockHeight)
	}
	return ready
}
