package docop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabletquery/docop/internal/docop"
	"github.com/tabletquery/docop/pkg/docerrors"
	"github.com/tabletquery/docop/pkg/fakestorage"
)

// Scenario 5: duplicate-key write classifies as AlreadyPresent carrying
// both storage error codes.
func TestWriteDocOp_DuplicateKey(t *testing.T) {
	session := fakestorage.NewSession()
	req := &docop.WriteRequest{Payload: "insert-1"}
	session.Register(req.Payload, fakestorage.NewScript(fakestorage.Page{
		Fail:         true,
		DuplicateKey: true,
		FailMessage:  "dup",
		PgErrorCode:  99, // stand-in for UNIQUE_VIOLATION
	}))

	op := docop.NewWriteDocOp(req, session, nil)

	ctx := context.Background()
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	_, err = op.Fetch(ctx)
	require.Error(t, err)
	require.True(t, docerrors.IsAlreadyPresent(err))
	require.EqualError(t, err, "dup")

	attrs, ok := docerrors.AttributesOf(err)
	require.True(t, ok)
	require.Equal(t, docerrors.PgErrorCode(99), attrs.PgErrorCode)

	done, err := op.EndOfResult()
	require.Error(t, err)
	require.False(t, done)
}

func TestWriteDocOp_SuccessCapturesRowsAffected(t *testing.T) {
	session := fakestorage.NewSession()
	req := &docop.WriteRequest{Payload: "insert-2"}
	session.Register(req.Payload, fakestorage.NewScript(fakestorage.Page{
		RowsAffected:    3,
		HasRowsAffected: true,
	}))

	op := docop.NewWriteDocOp(req, session, nil)

	ctx := context.Background()
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	_, err = op.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), op.RowsAffected())

	done, err := op.EndOfResult()
	require.NoError(t, err)
	require.True(t, done)
}

// Buffered writes are not an error path: execute reports no in-flight
// request and end_of_data is left untouched.
func TestWriteDocOp_Buffered(t *testing.T) {
	session := fakestorage.NewSession()
	session.BufferWrites = true
	req := &docop.WriteRequest{Payload: "insert-3"}

	op := docop.NewWriteDocOp(req, session, nil)

	ctx := context.Background()
	sent, err := op.Execute(ctx)
	require.NoError(t, err)
	require.False(t, sent)

	done, err := op.EndOfResult()
	require.NoError(t, err)
	require.False(t, done)
}

// Cancellation during flight: AbortAndWait blocks until the in-flight
// callback has observed cancellation, after which Fetch fails fast.
func TestWriteDocOp_CancellationDuringFlight(t *testing.T) {
	session := fakestorage.NewSession()
	session.AsyncCallback = true
	req := &docop.WriteRequest{Payload: "insert-4"}
	session.Register(req.Payload, fakestorage.NewScript(fakestorage.Page{RowsAffected: 1, HasRowsAffected: true}))

	op := docop.NewWriteDocOp(req, session, nil)

	ctx := context.Background()
	sent, err := op.Execute(ctx)
	require.NoError(t, err)
	require.True(t, sent)

	op.AbortAndWait()

	_, err = op.Fetch(ctx)
	require.ErrorIs(t, err, docerrors.ErrIllegalState)
	require.Equal(t, uint64(0), op.RowsAffected())
}
