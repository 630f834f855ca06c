// Package docerrors classifies storage-layer failures into the
// SQL-visible error taxonomy the document-operation core promises its
// callers: AlreadyPresent for duplicate-key responses, QueryLayerError
// for everything else. Both carry the storage pg-error and txn-error
// codes as attributes so an upstream gateway can act on them without
// re-parsing the message.
package docerrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PgErrorCode mirrors a Postgres-compatible error code surfaced by the
// storage layer. Zero value is InternalError, matching the "defaults to
// INTERNAL_ERROR" rule in the classification spec.
type PgErrorCode int32

const (
	PgErrorInternalError PgErrorCode = iota
	PgErrorUniqueViolation
)

// TxnErrorCode mirrors a transaction-layer error code surfaced by the
// storage layer. Zero value is TxnErrorNone.
type TxnErrorCode int32

const TxnErrorNone TxnErrorCode = 0

// Attributes is the pair of storage error codes attached to every
// classified docop error.
type Attributes struct {
	PgErrorCode  PgErrorCode
	TxnErrorCode TxnErrorCode
}

type classifiedError struct {
	status *status.Status
	attrs  Attributes
	cause  error
}

func (e *classifiedError) Error() string { return e.status.Message() }
func (e *classifiedError) Unwrap() error { return e.cause }

// GRPCStatus lets errors.As/status.FromError recover the coded status,
// so gateway middleware can translate errors without knowing about
// docop internals.
func (e *classifiedError) GRPCStatus() *status.Status { return e.status }

// AttributesOf extracts the pg/txn error code pair from err, if it was
// produced by this package.
func AttributesOf(err error) (Attributes, bool) {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.attrs, true
	}
	return Attributes{}, false
}

// AlreadyPresent builds the duplicate-key classification.
func AlreadyPresent(message string, attrs Attributes) error {
	return &classifiedError{
		status: status.New(codes.AlreadyExists, message),
		attrs:  attrs,
	}
}

// QueryLayerError builds the generic storage-failure classification.
func QueryLayerError(message string, attrs Attributes) error {
	return &classifiedError{
		status: status.New(codes.Internal, message),
		attrs:  attrs,
	}
}

// IsAlreadyPresent reports whether err is, or wraps, an AlreadyPresent
// classification.
func IsAlreadyPresent(err error) bool {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.status.Code() == codes.AlreadyExists
	}
	return false
}

// ErrIllegalState is returned by a DocOp's Execute and Fetch once the op
// has been cancelled.
var ErrIllegalState = status.Error(codes.FailedPrecondition, "illegal state: operation cancelled")

// Internal wraps an unexpected internal failure, capturing a stack
// trace and keeping the original error separate from the public-facing
// message.
func Internal(public string, cause error) error {
	if public == "" {
		public = "internal error"
	}
	return &classifiedError{
		status: status.New(codes.Internal, public),
		attrs:  Attributes{PgErrorCode: PgErrorInternalError, TxnErrorCode: TxnErrorNone},
		cause:  pkgerrors.WithStack(cause),
	}
}

func fmtAttrs(a Attributes) string {
	return fmt.Sprintf("pg_error=%d txn_error=%d", a.PgErrorCode, a.TxnErrorCode)
}

func (a Attributes) String() string { return fmtAttrs(a) }
