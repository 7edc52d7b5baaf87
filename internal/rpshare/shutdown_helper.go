package rpshare

import (
	"context"
	"sync"
)

// OnceActivateHandler is called exactly once, with shutdown paused, to
// activate an object that embeds ShutdownHelper. If it returns nil, the
// object is activated. If it returns an error, the object is never
// activated and shutdown begins immediately.
type OnceActivateHandler func() error

// OnceShutdownHandler must be implemented by the object that embeds
// ShutdownHelper.
type OnceShutdownHandler interface {
	// HandleOnceShutdown is called exactly once, in its own goroutine. It
	// takes completionError as an advisory completion value, actually
	// shuts down, then returns the real completion value.
	HandleOnceShutdown(completionError error) error
}

// AsyncShutdowner is implemented by objects that provide asynchronous
// shutdown capability.
type AsyncShutdowner interface {
	StartShutdown(completionErr error)
	ShutdownDoneChan() <-chan struct{}
	IsDoneShutdown() bool
	WaitShutdown() error
}

// ShutdownHelper is a base that manages clean asynchronous shutdown for an
// object that implements OnceShutdownHandler. The edge's listener manager
// and control-plane HTTP server embed one of these instead of
// hand-rolling a shutdown channel and sync.Once.
type ShutdownHelper struct {
	Logger

	// Lock is a general-purpose mutex available to the embedding type. The
	// helper itself also takes it to guard its own lifecycle flags.
	Lock sync.Mutex

	shutdownHandler OnceShutdownHandler

	shutdownPauseCount  int
	isActivated         bool
	isScheduledShutdown bool
	isStartedShutdown   bool
	isDoneShutdown      bool
	shutdownErr         error

	shutdownStartedChan     chan struct{}
	shutdownHandlerDoneChan chan struct{}
	shutdownDoneChan        chan struct{}

	wg sync.WaitGroup
}

// InitShutdownHelper initializes a ShutdownHelper in place.
func (h *ShutdownHelper) InitShutdownHelper(logger Logger, shutdownHandler OnceShutdownHandler) {
	h.Logger = logger
	h.shutdownHandler = shutdownHandler
	h.shutdownStartedChan = make(chan struct{})
	h.shutdownHandlerDoneChan = make(chan struct{})
	h.shutdownDoneChan = make(chan struct{})
}

func (h *ShutdownHelper) asyncDoStartedShutdown() {
	h.DLogf("->shutdownStarted")
	close(h.shutdownStartedChan)
	go func() {
		h.shutdownErr = h.shutdownHandler.HandleOnceShutdown(h.shutdownErr)
		h.DLogf("->shutdownHandlerDone")
		close(h.shutdownHandlerDoneChan)
		h.wg.Wait()
		h.isDoneShutdown = true
		h.DLogf("->shutdownDone")
		close(h.shutdownDoneChan)
	}()
}

// PauseShutdown increments the shutdown pause count, preventing shutdown
// from starting until a matching ResumeShutdown call.
func (h *ShutdownHelper) PauseShutdown() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if h.isStartedShutdown {
		return h.Errorf("shutdown already started; cannot pause")
	}
	h.shutdownPauseCount++
	return nil
}

// IsActivated returns true if this helper has been activated.
func (h *ShutdownHelper) IsActivated() bool { return h.isActivated }

// Activate sets the "activated" flag. A no-op if already activated.
// Fails if shutdown has already started.
func (h *ShutdownHelper) Activate() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if !h.isActivated {
		if h.isStartedShutdown {
			return h.Errorf("cannot activate; shutdown already initiated")
		}
		h.isActivated = true
	}
	return nil
}

// DoOnceActivate activates the object exactly once: pauses shutdown, runs
// onceActivateHandler, then activates (or begins shutdown on failure).
func (h *ShutdownHelper) DoOnceActivate(onceActivateHandler OnceActivateHandler, waitOnFail bool) error {
	var err error
	h.Lock.Lock()
	if h.isActivated {
		h.Lock.Unlock()
		return nil
	}
	if h.isStartedShutdown {
		h.Lock.Unlock()
		if waitOnFail {
			err = h.WaitShutdown()
		}
		if err == nil {
			err = h.Errorf("shutdown already started; cannot activate")
		}
		return err
	}
	h.shutdownPauseCount++
	h.Lock.Unlock()

	err = onceActivateHandler()
	if err == nil {
		err = h.Activate()
	}
	if err != nil {
		h.StartShutdown(err)
	}
	h.ResumeShutdown()
	if err != nil && waitOnFail {
		h.WaitShutdown()
	}
	return err
}

// ResumeShutdown decrements the shutdown pause count, starting shutdown if
// it reaches zero and shutdown was scheduled while paused.
func (h *ShutdownHelper) ResumeShutdown() {
	h.Lock.Lock()
	if h.shutdownPauseCount < 1 {
		h.Lock.Unlock()
		h.Panic("ResumeShutdown before PauseShutdown")
		return
	}
	h.shutdownPauseCount--
	doShutdownNow := h.shutdownPauseCount == 0 && h.isScheduledShutdown && !h.isStartedShutdown
	if doShutdownNow {
		h.isStartedShutdown = true
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// ShutdownOnContext begins background monitoring of ctx, starting shutdown
// with ctx.Err() if/when it is cancelled.
func (h *ShutdownHelper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.shutdownStartedChan:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

// IsStartedShutdown returns true once shutdown has begun.
func (h *ShutdownHelper) IsStartedShutdown() bool { return h.isStartedShutdown }

// IsDoneShutdown returns true once shutdown is complete.
func (h *ShutdownHelper) IsDoneShutdown() bool { return h.isDoneShutdown }

// ShutdownStartedChan returns a channel closed when shutdown has started.
func (h *ShutdownHelper) ShutdownStartedChan() <-chan struct{} { return h.shutdownStartedChan }

// ShutdownDoneChan returns a channel closed after shutdown is done.
func (h *ShutdownHelper) ShutdownDoneChan() <-chan struct{} { return h.shutdownDoneChan }

// WaitShutdown blocks until shutdown is complete, then returns the final
// completion status. It does not itself initiate shutdown.
func (h *ShutdownHelper) WaitShutdown() error {
	<-h.shutdownDoneChan
	return h.shutdownErr
}

// Shutdown initiates shutdown (if not already started), waits for it to
// complete, then returns the final status.
func (h *ShutdownHelper) Shutdown(completionError error) error {
	h.StartShutdown(completionError)
	return h.WaitShutdown()
}

// StartShutdown schedules asynchronous shutdown. A no-op if shutdown has
// already been scheduled. completionErr is an advisory completion value.
func (h *ShutdownHelper) StartShutdown(completionErr error) {
	var doShutdownNow bool
	h.Lock.Lock()
	if !h.isScheduledShutdown {
		h.shutdownErr = completionErr
		h.isScheduledShutdown = true
		doShutdownNow = h.shutdownPauseCount == 0
		h.isStartedShutdown = doShutdownNow
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// Close shuts down with a nil advisory completion status and returns the
// final completion status.
func (h *ShutdownHelper) Close() error {
	h.DLogf("Close()")
	return h.Shutdown(nil)
}

// AddShutdownChildChan adds a chan that must close before this object's
// shutdown is considered complete.
func (h *ShutdownHelper) AddShutdownChildChan(childDoneChan <-chan struct{}) {
	h.wg.Add(1)
	go func() {
		<-childDoneChan
		h.wg.Done()
	}()
}

// AddShutdownChild registers a child that will be actively shut down by
// this helper (using the parent's completion status) once
// HandleOnceShutdown returns, and waited on before this object's shutdown
// completes.
func (h *ShutdownHelper) AddShutdownChild(child AsyncShutdowner) {
	h.wg.Add(1)
	go func() {
		select {
		case <-child.ShutdownDoneChan():
		case <-h.shutdownHandlerDoneChan:
			child.StartShutdown(h.shutdownErr)
			child.WaitShutdown()
		}
		h.wg.Done()
	}()
}
