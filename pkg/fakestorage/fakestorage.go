// Package fakestorage provides an in-memory StorageSession and
// TableDescriptor used by docop's tests and by the docopbench CLI
// harness to exercise the core without a real tablet server.
package fakestorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tabletquery/docop/internal/docop"
	"github.com/tabletquery/docop/pkg/docerrors"
)

// Page is one scripted response for a single sub-request: the row blob
// it returns and whether it carries a paging continuation.
type Page struct {
	Rows        []byte
	PagingState docop.PagingState
	HasPaging   bool

	Fail         bool
	FailMessage  string
	DuplicateKey bool
	PgErrorCode  docerrors.PgErrorCode
	TxnErrorCode docerrors.TxnErrorCode

	RowsAffected    uint64
	HasRowsAffected bool
}

func (p Page) toResponse() *response { return &response{page: p} }

type response struct{ page Page }

func (r *response) Succeeded() bool { return !r.page.Fail }
func (r *response) ErrorMessage() string {
	if r.page.FailMessage != "" {
		return r.page.FailMessage
	}
	return "storage error"
}

func (r *response) StatusCode() docop.StorageStatusCode {
	if !r.page.Fail {
		return docop.StatusOK
	}
	if r.page.DuplicateKey {
		return docop.StatusDuplicateKeyError
	}
	return docop.StatusError
}

func (r *response) PgErrorCode() (docerrors.PgErrorCode, bool) {
	if !r.page.Fail {
		return 0, false
	}
	return r.page.PgErrorCode, true
}

func (r *response) TxnErrorCode() (docerrors.TxnErrorCode, bool) {
	if !r.page.Fail {
		return 0, false
	}
	return r.page.TxnErrorCode, true
}

func (r *response) PagingStateValue() (docop.PagingState, bool) {
	return r.page.PagingState, r.page.HasPaging
}

func (r *response) RowsAffectedValue() (uint64, bool) {
	return r.page.RowsAffected, r.page.HasRowsAffected
}

func (r *response) RowsData() []byte { return r.page.Rows }

// Script drives a fake sub-request's responses across successive
// dispatches: each call to Next returns the next scripted Page, holding
// the last one once exhausted.
type Script struct {
	pages []Page
	next  int
}

// NewScript returns a script that yields pages in order.
func NewScript(pages ...Page) *Script { return &Script{pages: pages} }

func (s *Script) Next() Page {
	if len(s.pages) == 0 {
		return Page{}
	}
	if s.next >= len(s.pages) {
		return s.pages[len(s.pages)-1]
	}
	p := s.pages[s.next]
	s.next++
	return p
}

// Session is an in-memory StorageSession. Responses for a given
// sub-request are looked up by matching a key derived from the request
// (see Register) against a registered Script; requests with no matching
// script get an empty, immediately-done page.
type Session struct {
	mu       sync.Mutex
	scripts  map[string]*Script
	handle   docop.SessionHandle
	pending  []*docop.ReadRequest
	pendingW []*docop.WriteRequest

	// FlushErr, when set, is delivered to the next FlushAsync callback as
	// the batch-level error instead of invoking per-request scripts.
	FlushErr error
	// BufferWrites causes ApplyAsync to report every write as buffered.
	BufferWrites bool
	// AsyncCallback runs the flush callback on a separate goroutine when
	// true, matching a real session's I/O-thread delivery; when false the
	// callback runs synchronously, which is convenient for deterministic
	// tests that don't care about the handshake's concurrency.
	AsyncCallback bool
}

// NewSession builds an empty fake session.
func NewSession() *Session {
	return &Session{scripts: map[string]*Script{}}
}

// Register associates a script with every sub-request matching key. For
// a read request with no partition fan-out, key should equal the
// template's Predicate field; for a fanned-out sub-request, key should
// equal the tuple of partition column values selected for it (use
// PartitionKey to build it), so each permutation can script a distinct
// page sequence. For a write request key should equal the request's
// Payload field.
func (s *Session) Register(key interface{}, script *Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[fmt.Sprint(key)] = script
}

// PartitionKey builds the Register key for a fanned-out read
// sub-request from the concrete values selected for each hash column,
// e.g. PartitionKey(1, 10) for the (a=1, b=10) permutation.
func PartitionKey(values ...interface{}) []interface{} { return values }

func readKey(r *docop.ReadRequest) interface{} {
	if len(r.PartitionColumnValues) == 0 {
		return r.Predicate
	}
	values := make([]interface{}, len(r.PartitionColumnValues))
	for i, v := range r.PartitionColumnValues {
		values[i] = v.V
	}
	return values
}

func (s *Session) ApplyAsync(_ context.Context, req interface{}, readTime *docop.ReadTime) (bool, docop.SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !readTime.Set {
		readTime.Value = []byte(uuid.NewString())
		readTime.Set = true
	}

	switch r := req.(type) {
	case *docop.ReadRequest:
		s.pending = append(s.pending, r)
	case *docop.WriteRequest:
		if s.BufferWrites {
			return true, nil, nil
		}
		s.pendingW = append(s.pendingW, r)
	}

	if s.handle == nil {
		s.handle = uuid.NewString()
	}
	return false, s.handle, nil
}

func (s *Session) FlushAsync(_ context.Context, _ docop.SessionHandle, cb func(docop.BatchResponse)) error {
	s.mu.Lock()
	reads := s.pending
	writes := s.pendingW
	s.pending = nil
	s.pendingW = nil
	flushErr := s.FlushErr
	s.FlushErr = nil
	async := s.AsyncCallback
	s.mu.Unlock()

	deliver := func() {
		if flushErr != nil {
			cb(docop.BatchResponse{Err: flushErr})
			return
		}
		responses := make([]docop.Response, 0, len(reads)+len(writes))
		for _, r := range reads {
			responses = append(responses, s.respond(readKey(r)))
		}
		for _, w := range writes {
			responses = append(responses, s.respond(w.Payload))
		}
		cb(docop.BatchResponse{Responses: responses})
	}

	if async {
		go deliver()
	} else {
		deliver()
	}
	return nil
}

func (s *Session) respond(key interface{}) docop.Response {
	s.mu.Lock()
	script := s.scripts[fmt.Sprint(key)]
	s.mu.Unlock()
	if script == nil {
		return (Page{}).toResponse()
	}
	return script.Next().toResponse()
}

// TableDescriptor is an in-memory TableDescriptor with a fixed hash-key
// column count.
type TableDescriptor struct {
	HashKeyColumns int
	ForwardScan    bool
}

func (d *TableDescriptor) NumHashKeyColumns() int { return d.HashKeyColumns }

func (d *TableDescriptor) NewSelect() *docop.ReadRequest {
	return &docop.ReadRequest{ForwardScan: d.ForwardScan}
}
