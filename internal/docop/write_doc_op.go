package docop

import (
	"context"

	"github.com/tabletquery/docop/pkg/logger"
)

// WriteDocOp dispatches a single write request. Writes are single-shot:
// one ApplyAsync, at most one flush, and end_of_data is set the moment
// a response is observed. A buffered apply leaves end_of_data unchanged.
type WriteDocOp struct {
	DocOpBase

	session  StorageSession
	request  *WriteRequest
	readTime ReadTime

	rowsAffected uint64
}

// NewWriteDocOp builds a WriteDocOp for a single write request.
func NewWriteDocOp(request *WriteRequest, session StorageSession, log logger.Logger) *WriteDocOp {
	w := &WriteDocOp{
		session: session,
		request: request,
	}
	w.Init(log)
	return w
}

func (w *WriteDocOp) Execute(ctx context.Context) (bool, error) { return w.execute(ctx, w) }
func (w *WriteDocOp) Fetch(ctx context.Context) ([]byte, error) { return w.fetch(ctx, w) }
func (w *WriteDocOp) EndOfResult() (bool, error)                { return w.endOfResult() }
func (w *WriteDocOp) AbortAndWait()                              { w.abortAndWait() }

// RowsAffected returns the affected-row count captured from the write
// response, or 0 if the op hasn't completed (or the response carried no
// explicit count).
func (w *WriteDocOp) RowsAffected() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowsAffected
}

func (w *WriteDocOp) resetOneShotState() {
	w.rowsAffected = 0
}

func (w *WriteDocOp) sendRequest(ctx context.Context) error {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		panic("docop: WriteDocOp.sendRequest called while a request is already in flight")
	}
	req := w.request
	readTime := &w.readTime
	w.mu.Unlock()

	buffered, handle, err := w.session.ApplyAsync(ctx, req, readTime)
	if err != nil {
		return err
	}
	if buffered {
		// The session deferred this write into a statement-local batch.
		// Report neither in-flight nor end-of-data; the eventual flush is
		// driven through a separate channel owned by the session.
		return nil
	}

	w.mu.Lock()
	w.inFlight = true
	w.mu.Unlock()

	op := w
	return w.session.FlushAsync(ctx, handle, func(batch BatchResponse) {
		op.onResponse(batch)
	})
}

func (w *WriteDocOp) onResponse(batch BatchResponse) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.cond.Broadcast()

	w.inFlight = false
	w.endOfData = true

	if batch.Err != nil {
		w.execStatus = batch.Err
		return
	}
	if len(batch.Responses) == 0 {
		w.execStatus = errMissingWriteResponse
		return
	}

	resp := batch.Responses[0]
	if err := classifyResponse(resp); err != nil {
		w.execStatus = err
		return
	}

	if w.cancelled {
		return
	}

	if data := resp.RowsData(); len(data) > 0 {
		w.cache.push(data)
	}
	if n, ok := resp.RowsAffectedValue(); ok {
		w.rowsAffected = n
	} else {
		w.rowsAffected = 0
	}
}
