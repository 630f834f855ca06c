package docop

import (
	"context"
	"sync"

	"github.com/tabletquery/docop/pkg/docerrors"
	"github.com/tabletquery/docop/pkg/logger"
)

// dispatcher is implemented by each concrete op (ReadDocOp, WriteDocOp)
// and supplies the two pieces of behavior DocOpBase delegates: clearing
// one-shot state on a fresh Execute, and issuing the next storage
// dispatch.
type dispatcher interface {
	resetOneShotState()
	sendRequest(ctx context.Context) error
}

// DocOpBase is the lifecycle, cache, cancellation, and dispatch/receive
// handshake shared by every op flavor. It is a small state machine
// protected by a single mutex and condition variable: the SQL-layer
// caller is the consumer thread, the storage session's completion
// callback runs on its own goroutine, and the two synchronize
// exclusively through mu/cond, the same discipline a mutex-guarded
// ring buffer uses for its head/tail bookkeeping.
type DocOpBase struct {
	mu   sync.Mutex
	cond *sync.Cond

	log logger.Logger

	params ExecParameters

	cache      resultQueue
	execStatus error
	endOfData  bool
	cancelled  bool
	inFlight   bool
}

// Init must be called once by every concrete op's constructor before
// use; it is split out from a constructor function because DocOpBase is
// always embedded, never constructed standalone.
func (b *DocOpBase) Init(log logger.Logger) {
	b.cond = sync.NewCond(&b.mu)
	if log == nil {
		log = defaultLogger()
	}
	b.log = log
	b.params.RowMark = -1
}

// SetExecParams copies p wholesale. A nil p retains whatever parameters
// were set previously.
func (b *DocOpBase) SetExecParams(p *ExecParameters) {
	if p == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = *p
}

func (b *DocOpBase) execParams() ExecParameters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params
}

// execute resets per-statement state and delegates the first dispatch
// to self. It never blocks.
func (b *DocOpBase) execute(ctx context.Context, self dispatcher) (bool, error) {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return false, docerrors.ErrIllegalState
	}
	b.cache.reset()
	b.endOfData = false
	self.resetOneShotState()
	b.mu.Unlock()

	if err := self.sendRequest(ctx); err != nil {
		return false, err
	}

	b.mu.Lock()
	inFlight := b.inFlight
	b.mu.Unlock()
	return inFlight, nil
}

// fetch drains one cached blob, dispatching ahead of the caller's
// consumption whenever the cache empties but the scan is not done.
func (b *DocOpBase) fetch(ctx context.Context, self dispatcher) ([]byte, error) {
	b.mu.Lock()
	if err := b.execStatus; err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if b.cancelled {
		b.mu.Unlock()
		return nil, docerrors.ErrIllegalState
	}

	needsDispatch := b.cache.len() == 0 && !b.endOfData && !b.inFlight
	b.mu.Unlock()

	if needsDispatch {
		if err := self.sendRequest(ctx); err != nil {
			return nil, err
		}
	}

	stopWatch := b.watchContext(ctx)
	defer stopWatch()

	b.mu.Lock()
	for b.cache.len() == 0 && !b.endOfData && b.execStatus == nil {
		if err := ctx.Err(); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.cond.Wait()
	}

	if err := b.execStatus; err != nil {
		b.mu.Unlock()
		return nil, err
	}

	blob, _ := b.cache.popFront()
	dispatchNext := b.cache.len() == 0 && !b.endOfData && !b.inFlight
	b.mu.Unlock()

	if dispatchNext {
		if err := self.sendRequest(ctx); err != nil {
			return blob, err
		}
	}
	return blob, nil
}

// watchContext starts a goroutine that broadcasts on mu/cond when ctx is
// cancelled, so a blocked fetch() notices caller-side cancellation
// instead of only ever waking on a storage response. The returned stop
// function must be called once the wait loop is done to avoid leaking
// the goroutine.
func (b *DocOpBase) watchContext(ctx context.Context) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// endOfResult returns whether the scan is complete with nothing left to
// drain, checking the sticky status first.
func (b *DocOpBase) endOfResult() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.execStatus != nil {
		return false, b.execStatus
	}
	return b.cache.len() == 0 && b.endOfData, nil
}

// abortAndWait sets cancellation, wakes every waiter, then blocks until
// any in-flight response has completed its callback. Idempotent.
func (b *DocOpBase) abortAndWait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = true
	b.cond.Broadcast()
	for b.inFlight {
		b.cond.Wait()
	}
}

// hasCachedData reports whether the cache currently holds a blob, kept
// as its own accessor so tests can assert cache state directly.
func (b *DocOpBase) hasCachedData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.len() > 0
}
