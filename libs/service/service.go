package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ethersync/ethersync/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to start a service
	// that has already been stopped.
	ErrAlreadyStopped = errors.New("already stopped")
)

// Service defines a service that can be started and stopped. A stopped
// service cannot be started again.
type Service interface {
	// Start is called to start the service, which should run until the
	// context terminates or Stop is called. If the service is already
	// running, Start must report an error.
	Start(context.Context) error

	// Stop signals the service to shut down. It is safe to call more than
	// once; only the first call has effect.
	Stop()

	// Return true if the service is running
	IsRunning() bool

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the BaseService
// implementation wraps.
type Implementation interface {
	// Called by the Service's Start method.
	OnStart(context.Context) error

	// Called once when the service shuts down, before Wait is released.
	OnStop()
}

// BaseService provides the guts of the Service interface: it guards against
// double starts and double stops, ties the service lifetime to a context, and
// releases Wait exactly once. Concrete services embed it and supply OnStart
// and OnStop.
type BaseService struct {
	logger  log.Logger
	name    string
	started uint32 // atomic
	stopped uint32 // atomic
	quit    chan struct{}

	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. An error will be
// returned if the service is stopped or already running. The service stops
// when the given context is canceled or Stop is called, whichever is first.
func (bs *BaseService) Start(ctx context.Context) error {
	if atomic.CompareAndSwapUint32(&bs.started, 0, 1) {
		if atomic.LoadUint32(&bs.stopped) == 1 {
			bs.logger.Error("not starting service, already stopped", "service", bs.name)
			atomic.StoreUint32(&bs.started, 0)
			return ErrAlreadyStopped
		}

		bs.logger.Info("starting service", "service", bs.name)

		if err := bs.impl.OnStart(ctx); err != nil {
			atomic.StoreUint32(&bs.started, 0)
			return err
		}

		go func() {
			select {
			case <-bs.quit:
				// service was stopped explicitly
			case <-ctx.Done():
				bs.Stop()
			}
		}()

		return nil
	}

	bs.logger.Debug("not starting service, already started", "service", bs.name)
	return ErrAlreadyStarted
}

// Stop implements Service by calling OnStop (if defined) and releasing Wait.
// Safe to call multiple times.
func (bs *BaseService) Stop() {
	if atomic.CompareAndSwapUint32(&bs.stopped, 0, 1) {
		bs.logger.Info("stopping service", "service", bs.name)
		bs.impl.OnStop()
		close(bs.quit)
	}
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	return atomic.LoadUint32(&bs.started) == 1 && atomic.LoadUint32(&bs.stopped) == 0
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
