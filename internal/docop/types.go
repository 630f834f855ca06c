// Package docop implements the document-operation execution core: the
// state machine a SQL layer drives to translate one prepared read or
// write statement into one or more physical sub-requests against a
// tablet-storage layer, pacing dispatch against result consumption,
// carrying paging continuations across round trips, fanning a single
// read out across the Cartesian product of hash-partition equalities,
// and classifying storage failures into a SQL-visible error taxonomy.
package docop

import (
	"context"

	"github.com/tabletquery/docop/internal/server/config"
	"github.com/tabletquery/docop/pkg/docerrors"
	"github.com/tabletquery/docop/pkg/logger"
)

// ExecParameters are the caller-supplied parameters for one statement,
// copied wholesale by SetExecParams and overwritten on the next call.
type ExecParameters struct {
	LimitCount      uint64
	LimitOffset     uint64
	LimitUseDefault bool
	// RowMark is the row-locking mode tag forwarded to storage; negative
	// means no row mark was requested.
	RowMark int32
}

// PartitionValue is an opaque, pointer-stable equality operand drawn
// from a hash-column predicate. The core never interprets V; it only
// copies references to it into sub-requests.
type PartitionValue struct {
	V interface{}
}

// PartitionPredicate is the predicate installed on one hash-key column
// of a read template before fan-out: either a single equality or an
// IN-list. Exactly one of Equals or In is populated.
type PartitionPredicate struct {
	Equals *PartitionValue
	In     []PartitionValue
}

// operands returns the candidate values for this column, in the order
// used for mixed-radix enumeration.
func (p PartitionPredicate) operands() []PartitionValue {
	if p.In != nil {
		return p.In
	}
	if p.Equals != nil {
		return []PartitionValue{*p.Equals}
	}
	return nil
}

// PagingState is an opaque continuation token returned by storage that,
// installed on the next request, resumes a scan where it left off.
type PagingState []byte

// ReadTime is the transaction manager's read-time handle: a small
// mutable value the storage session fills in on the first ApplyAsync of
// a statement and that subsequent sub-requests reuse unmodified.
type ReadTime struct {
	Value []byte
	Set   bool
}

// ReadRequest is the shared, clonable prepared-read descriptor. A
// TableDescriptor produces a fresh template via NewSelect; the core
// clones it once per sub-request and mutates the clone's limit,
// row-mark, partition values, and paging state.
type ReadRequest struct {
	Limit             uint64
	RowMarkType       int32
	HasRowMark        bool
	ForwardScan       bool
	CatalogVersion    uint64
	HasCatalogVersion bool

	// HashPredicates holds one entry per hash-key column, describing the
	// predicate the planner installed on that column. Empty means no
	// hash predicate was specified at all (or the table has no hash
	// columns), in which case fan-out emits a single copy of the
	// template.
	HashPredicates []PartitionPredicate

	// PartitionColumnValues holds the concrete operand chosen for each
	// hash column on a dispatched sub-request. Empty on the template
	// itself before fan-out.
	PartitionColumnValues []PartitionValue

	Paging    PagingState
	HasPaging bool

	// Index chains to a nested request (e.g. a secondary-index lookup
	// wrapping a base-table request); paging state is always installed
	// on the innermost descendant, never on an intermediate node.
	Index *ReadRequest

	// Predicate is an opaque payload the SQL layer may stash on the
	// template (the actual WHERE-clause representation); the core never
	// reads it.
	Predicate interface{}
}

// Clone deep-copies r, including its Index chain. HashPredicates is
// shared rather than copied since it is immutable predicate metadata,
// not per-sub-request state.
func (r *ReadRequest) Clone() *ReadRequest {
	if r == nil {
		return nil
	}
	return &ReadRequest{
		Limit:                 r.Limit,
		RowMarkType:           r.RowMarkType,
		HasRowMark:            r.HasRowMark,
		ForwardScan:           r.ForwardScan,
		CatalogVersion:        r.CatalogVersion,
		HasCatalogVersion:     r.HasCatalogVersion,
		HashPredicates:        r.HashPredicates,
		PartitionColumnValues: append([]PartitionValue(nil), r.PartitionColumnValues...),
		Paging:                r.Paging,
		HasPaging:             r.HasPaging,
		Index:                 r.Index.Clone(),
		Predicate:             r.Predicate,
	}
}

func (r *ReadRequest) SetLimit(n uint64)          { r.Limit = n }
func (r *ReadRequest) SetRowMarkType(rm int32)    { r.RowMarkType = rm; r.HasRowMark = true }
func (r *ReadRequest) ClearRowMarkType()          { r.RowMarkType = 0; r.HasRowMark = false }
func (r *ReadRequest) IsForwardScan() bool        { return r.ForwardScan }
func (r *ReadRequest) ClearCatalogVersion()       { r.CatalogVersion = 0; r.HasCatalogVersion = false }
func (r *ReadRequest) SetPagingState(ps PagingState) {
	r.Paging = ps
	r.HasPaging = true
}
func (r *ReadRequest) PagingStateValue() (PagingState, bool) { return r.Paging, r.HasPaging }

// InnermostIndexRequest follows the Index chain to its bottom. Paging
// state must always be installed there, never on an intermediate node
// of the chain — a structural recursion, not a loop over siblings.
func (r *ReadRequest) InnermostIndexRequest() *ReadRequest {
	if r.Index == nil {
		return r
	}
	return r.Index.InnermostIndexRequest()
}

// WriteRequest is a single opaque write descriptor. Unlike ReadRequest
// it is never cloned — a write op dispatches exactly one sub-request.
type WriteRequest struct {
	Payload interface{}
}

// StorageStatusCode is the coarse status carried by a sub-response.
type StorageStatusCode int

const (
	StatusOK StorageStatusCode = iota
	StatusDuplicateKeyError
	StatusError
)

// Response is the contract every sub-response (read or write) must
// satisfy.
type Response interface {
	Succeeded() bool
	ErrorMessage() string
	StatusCode() StorageStatusCode
	PgErrorCode() (docerrors.PgErrorCode, bool)
	TxnErrorCode() (docerrors.TxnErrorCode, bool)
	PagingStateValue() (PagingState, bool)
	RowsAffectedValue() (uint64, bool)
	RowsData() []byte
}

// SessionHandle identifies the shared storage session returned by the
// first ApplyAsync of a dispatch; every sub-request of that dispatch
// shares the same handle.
type SessionHandle interface{}

// BatchResponse is delivered exactly once to the callback registered
// with FlushAsync. Responses are ordered to match submission order.
// Err is the overall flush status; individual Responses may still carry
// per-sub-request failures for the core to classify.
type BatchResponse struct {
	Err       error
	Responses []Response
}

// StorageSession is the abstract tablet-storage session this core
// drives. It is borrowed per dispatch and never owned by a DocOp.
type StorageSession interface {
	// ApplyAsync stages req for the shared session behind handle. Reads
	// must never report buffered; write requests may be batched with
	// other statement-local writes and deferred.
	ApplyAsync(ctx context.Context, req interface{}, readTime *ReadTime) (buffered bool, handle SessionHandle, err error)
	// FlushAsync schedules every staged request for network dispatch and
	// invokes cb exactly once when the batch completes.
	FlushAsync(ctx context.Context, handle SessionHandle, cb func(BatchResponse)) error
}

// TableDescriptor is the abstract schema/template source.
type TableDescriptor interface {
	NumHashKeyColumns() int
	NewSelect() *ReadRequest
}

// classifyResponse turns a failed sub-response into the SQL-visible
// AlreadyPresent/QueryLayerError taxonomy. A successful response
// classifies to nil.
func classifyResponse(resp Response) error {
	if resp.Succeeded() {
		return nil
	}
	pg, ok := resp.PgErrorCode()
	if !ok {
		pg = docerrors.PgErrorInternalError
	}
	txn, ok := resp.TxnErrorCode()
	if !ok {
		txn = docerrors.TxnErrorNone
	}
	attrs := docerrors.Attributes{PgErrorCode: pg, TxnErrorCode: txn}
	msg := resp.ErrorMessage()
	if resp.StatusCode() == StatusDuplicateKeyError {
		return docerrors.AlreadyPresent(msg, attrs)
	}
	return docerrors.QueryLayerError(msg, attrs)
}

// tunables is an alias kept local so subtype files don't need to import
// the config package directly in every signature.
type tunables = config.Tunables

// defaultLogger is a package-level convenience so op constructors can default to
// a no-op logger without importing logger in every call site.
func defaultLogger() logger.Logger { return logger.NewNop() }
