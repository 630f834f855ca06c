package docop

import (
	"context"

	"go.uber.org/zap"

	"github.com/tabletquery/docop/pkg/logger"
)

// ReadDocOp executes a scan: prefetch sizing, row-mark application,
// partition fan-out across hash-column equalities, and paging
// continuation across round trips.
type ReadDocOp struct {
	DocOpBase

	descriptor TableDescriptor
	session    StorageSession
	tunables   tunables
	readTime   ReadTime

	template *ReadRequest

	fanout            *partitionFanout
	nextOpIdx         int
	canProduceMoreOps bool
	liveSubRequests   []*ReadRequest
}

// NewReadDocOp builds a ReadDocOp against a fresh template obtained
// from descriptor. The template's HashPredicates (if any) must already
// be installed by the caller before Execute is called — the core only
// enumerates them, it does not derive them from a parsed predicate.
func NewReadDocOp(descriptor TableDescriptor, session StorageSession, t tunables, log logger.Logger) *ReadDocOp {
	r := &ReadDocOp{
		descriptor: descriptor,
		session:    session,
		tunables:   t,
		template:   descriptor.NewSelect(),
	}
	r.Init(log)
	return r
}

// Template exposes the prepared read descriptor so the SQL layer can
// install hash-column predicates or other planner output (such as the
// opaque Predicate payload) before the first Execute.
func (r *ReadDocOp) Template() *ReadRequest { return r.template }

func (r *ReadDocOp) Execute(ctx context.Context) (bool, error) { return r.execute(ctx, r) }
func (r *ReadDocOp) Fetch(ctx context.Context) ([]byte, error) { return r.fetch(ctx, r) }
func (r *ReadDocOp) EndOfResult() (bool, error)                { return r.endOfResult() }
func (r *ReadDocOp) AbortAndWait()                              { r.abortAndWait() }

func (r *ReadDocOp) resetOneShotState() {
	r.fanout = nil
	r.nextOpIdx = 0
	r.liveSubRequests = nil
	r.canProduceMoreOps = true
}

// initializeNextOps emits up to n new sub-requests from the partition
// fan-out, appending them to liveSubRequests. Called while r.mu is held.
func (r *ReadDocOp) initializeNextOps(n int) {
	if r.fanout == nil {
		if r.descriptor.NumHashKeyColumns() == 0 || len(r.template.HashPredicates) == 0 {
			r.liveSubRequests = append(r.liveSubRequests, r.template.Clone())
			r.canProduceMoreOps = false
			return
		}
		r.fanout = newPartitionFanout(r.template.HashPredicates)
	}

	k := len(r.fanout.exprs)
	for n > 0 && r.nextOpIdx < r.fanout.total {
		clone := r.template.Clone()
		clone.PartitionColumnValues = make([]PartitionValue, k)
		copy(clone.PartitionColumnValues, r.fanout.permutation(r.nextOpIdx))
		r.liveSubRequests = append(r.liveSubRequests, clone)
		r.nextOpIdx++
		n--
	}
	if r.nextOpIdx == r.fanout.total {
		r.canProduceMoreOps = false
	}
}

// prefetchLimit derives a predicted per-dispatch row cap, scaled down
// for reverse scans and floored at 1; sendRequest compares it against
// the caller's own limit+offset unless the default is forced.
func (r *ReadDocOp) prefetchLimit(forward bool) uint64 {
	predicted := float64(r.tunables.PrefetchLimit)
	if !forward {
		predicted *= r.tunables.BackwardPrefetchScaleFactor
	}
	if predicted < 1 {
		predicted = 1
	}
	return uint64(predicted)
}

func (r *ReadDocOp) sendRequest(ctx context.Context) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		panic("docop: ReadDocOp.sendRequest called while a request is already in flight")
	}

	params := r.params
	predicted := r.prefetchLimit(r.template.IsForwardScan())
	total := params.LimitCount + params.LimitOffset
	limit := predicted
	if !params.LimitUseDefault && total <= predicted {
		limit = total
	}
	r.template.SetLimit(limit)
	if params.RowMark >= 0 {
		r.template.SetRowMarkType(params.RowMark)
	} else {
		r.template.ClearRowMarkType()
	}

	if r.canProduceMoreOps {
		budget := r.tunables.RequestLimit - len(r.liveSubRequests)
		if budget > 0 {
			r.initializeNextOps(budget)
		}
	}

	reqs := append([]*ReadRequest(nil), r.liveSubRequests...)
	readTime := &r.readTime
	r.mu.Unlock()

	if len(reqs) == 0 {
		// Nothing left to fan out and nothing live: the scan is simply
		// done, there is no dispatch to make.
		r.mu.Lock()
		r.endOfData = true
		r.cond.Broadcast()
		r.mu.Unlock()
		return nil
	}

	var handle SessionHandle
	for _, req := range reqs {
		buffered, h, err := r.session.ApplyAsync(ctx, req, readTime)
		if err != nil {
			return err
		}
		if buffered {
			panic("docop: storage session reported a buffered apply for a read request")
		}
		handle = h
	}

	r.mu.Lock()
	r.inFlight = true
	r.mu.Unlock()

	r.log.Debug("read dispatch", zap.Int("sub_requests", len(reqs)))

	op := r
	return r.session.FlushAsync(ctx, handle, func(batch BatchResponse) {
		op.onResponse(reqs, batch)
	})
}

// onResponse handles a completed dispatch: classifying failures,
// caching row data, and re-queuing any sub-request that came back with
// a paging continuation. reqs is the exact slice of sub-requests
// submitted by the dispatch this batch answers, in submission order,
// so batch.Responses[i] corresponds to reqs[i].
func (r *ReadDocOp) onResponse(reqs []*ReadRequest, batch BatchResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.cond.Broadcast()

	r.inFlight = false

	if batch.Err != nil {
		r.execStatus = batch.Err
		r.endOfData = true
		return
	}

	for _, resp := range batch.Responses {
		if err := classifyResponse(resp); err != nil {
			r.execStatus = err
			r.endOfData = true
			return
		}
	}

	if r.cancelled {
		r.endOfData = true
		return
	}

	survivors := make([]*ReadRequest, 0, len(reqs))
	for i, req := range reqs {
		resp := batch.Responses[i]
		if data := resp.RowsData(); len(data) > 0 {
			r.cache.push(data)
		}
		if ps, ok := resp.PagingStateValue(); ok {
			inner := req.InnermostIndexRequest()
			inner.SetPagingState(ps)
			req.ClearCatalogVersion()
			survivors = append(survivors, req)
		}
	}
	r.liveSubRequests = survivors

	r.endOfData = len(r.liveSubRequests) == 0 && !r.canProduceMoreOps
}

