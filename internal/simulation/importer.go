package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethersync/ethersync/libs/log"
	"github.com/ethersync/ethersync/types"
)

// Importer is a toy downstream importer: it verifies that pushed headers and
// blocks arrive strictly ascending and gap-free, and drains its block queue
// at a configurable rate so backpressure can be observed.
type Importer struct {
	logger log.Logger

	mtx          sync.Mutex
	queued       int
	limit        int
	importDelay  time.Duration
	headerHeight int64
	blockHeight  int64
	totalHeaders int64
	totalBlocks  int64
	violation    error

	done     chan struct{}
	doneOnce sync.Once
}

// NewImporter creates an importer that admits up to limit blocks and spends
// importDelay on each.
func NewImporter(logger log.Logger, startHeight int64, limit int, importDelay time.Duration) *Importer {
	if importDelay <= 0 {
		importDelay = time.Millisecond
	}
	return &Importer{
		logger:       logger,
		limit:        limit,
		importDelay:  importDelay,
		headerHeight: startHeight,
		blockHeight:  startHeight,
		done:         make(chan struct{}),
	}
}

// Run drains the block queue until ctx is canceled.
func (imp *Importer) Run(ctx context.Context) error {
	ticker := time.NewTicker(imp.importDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			imp.mtx.Lock()
			if imp.queued > 0 {
				imp.queued--
			}
			imp.mtx.Unlock()
		}
	}
}

func (imp *Importer) PushHeaders(headers []*types.HeaderWrapper) {
	imp.mtx.Lock()
	defer imp.mtx.Unlock()
	for _, hw := range headers {
		if hw.Height() != imp.headerHeight+1 && imp.violation == nil {
			imp.violation = fmt.Errorf("header gap: got %d after %d", hw.Height(), imp.headerHeight)
		}
		imp.headerHeight = hw.Height()
		imp.totalHeaders++
	}
}

func (imp *Importer) PushBlocks(blocks []*types.BlockWrapper) {
	imp.mtx.Lock()
	defer imp.mtx.Unlock()
	for _, bw := range blocks {
		if bw.Height() != imp.blockHeight+1 && imp.violation == nil {
			imp.violation = fmt.Errorf("block gap: got %d after %d", bw.Height(), imp.blockHeight)
		}
		imp.blockHeight = bw.Height()
		imp.totalBlocks++
		imp.queued++
	}
}

func (imp *Importer) BlockQueueFreeSize() int {
	imp.mtx.Lock()
	defer imp.mtx.Unlock()
	free := imp.limit - imp.queued
	if free < 0 {
		free = 0
	}
	return free
}

func (imp *Importer) IsSyncDone() bool { return false }

func (imp *Importer) FinishDownload() {
	imp.doneOnce.Do(func() { close(imp.done) })
}

// Done is closed once FinishDownload has been called.
func (imp *Importer) Done() <-chan struct{} { return imp.done }

// Progress returns the last pushed header and block heights.
func (imp *Importer) Progress() (headerHeight, blockHeight int64) {
	imp.mtx.Lock()
	defer imp.mtx.Unlock()
	return imp.headerHeight, imp.blockHeight
}

// Violation returns the first ordering violation observed, if any.
func (imp *Importer) Violation() error {
	imp.mtx.Lock()
	defer imp.mtx.Unlock()
	return imp.violation
}
