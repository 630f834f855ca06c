package docop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabletquery/docop/internal/docop"
	"github.com/tabletquery/docop/internal/server/config"
	"github.com/tabletquery/docop/pkg/docerrors"
	"github.com/tabletquery/docop/pkg/fakestorage"
)

func newReadOp(t *testing.T, hashColumns int, forward bool, tunables config.Tunables) (*docop.ReadDocOp, *fakestorage.Session) {
	t.Helper()
	descriptor := &fakestorage.TableDescriptor{HashKeyColumns: hashColumns, ForwardScan: forward}
	session := fakestorage.NewSession()
	op := docop.NewReadDocOp(descriptor, session, tunables, nil)
	return op, session
}

// Scenario 1: single-partition scan, one page.
func TestReadDocOp_SinglePartitionOnePage(t *testing.T) {
	op, session := newReadOp(t, 0, true, config.NewDefaultTunables())
	session.Register(nil, fakestorage.NewScript(fakestorage.Page{Rows: []byte("R1")}))

	ctx := context.Background()
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	row, err := op.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("R1"), row)

	row, err = op.Fetch(ctx)
	require.NoError(t, err)
	require.Empty(t, row)

	done, err := op.EndOfResult()
	require.NoError(t, err)
	require.True(t, done)
}

// Scenario 2: paging continuation across two round trips.
func TestReadDocOp_PagingContinuation(t *testing.T) {
	op, session := newReadOp(t, 0, true, config.NewDefaultTunables())
	session.Register(nil, fakestorage.NewScript(
		fakestorage.Page{Rows: []byte("R1"), PagingState: docop.PagingState("p1"), HasPaging: true},
		fakestorage.Page{Rows: []byte("R2")},
	))

	ctx := context.Background()
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	row, err := op.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("R1"), row)

	row, err = op.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("R2"), row)

	row, err = op.Fetch(ctx)
	require.NoError(t, err)
	require.Empty(t, row)

	done, err := op.EndOfResult()
	require.NoError(t, err)
	require.True(t, done)
}

// Scenario 3: partition fan-out 2x3, request_limit large enough for the
// whole batch at once.
func TestReadDocOp_PartitionFanoutSingleBatch(t *testing.T) {
	tunables := config.NewDefaultTunables()
	tunables.RequestLimit = 10

	op, session := newReadOp(t, 2, true, tunables)

	wantPerms := [][2]int{{1, 10}, {1, 20}, {1, 30}, {2, 10}, {2, 20}, {2, 30}}
	for _, p := range wantPerms {
		session.Register(fakestorage.PartitionKey(p[0], p[1]), fakestorage.NewScript(fakestorage.Page{}))
	}

	op.Template().HashPredicates = []docop.PartitionPredicate{
		{In: []docop.PartitionValue{{V: 1}, {V: 2}}},
		{In: []docop.PartitionValue{{V: 10}, {V: 20}, {V: 30}}},
	}

	ctx := context.Background()
	sent, err := op.Execute(ctx)
	require.NoError(t, err)
	require.True(t, sent)

	done, err := op.EndOfResult()
	require.NoError(t, err)
	require.True(t, done)
}

// Scenario 4: partition fan-out capped by request_limit, emitted across
// two dispatches.
func TestReadDocOp_PartitionFanoutCapped(t *testing.T) {
	tunables := config.NewDefaultTunables()
	tunables.RequestLimit = 4

	op, session := newReadOp(t, 2, true, tunables)

	wantPerms := [][2]int{{1, 10}, {1, 20}, {1, 30}, {2, 10}, {2, 20}, {2, 30}}
	for _, p := range wantPerms {
		session.Register(fakestorage.PartitionKey(p[0], p[1]), fakestorage.NewScript(fakestorage.Page{Rows: []byte("r")}))
	}

	op.Template().HashPredicates = []docop.PartitionPredicate{
		{In: []docop.PartitionValue{{V: 1}, {V: 2}}},
		{In: []docop.PartitionValue{{V: 10}, {V: 20}, {V: 30}}},
	}

	ctx := context.Background()
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	rows := 0
	for {
		done, err := op.EndOfResult()
		require.NoError(t, err)
		if done {
			break
		}
		row, err := op.Fetch(ctx)
		require.NoError(t, err)
		if len(row) > 0 {
			rows++
		}
	}
	require.Equal(t, len(wantPerms), rows)
}

// Scenario 6 (read half): cancellation during flight drains the
// in-flight callback and surfaces IllegalState on the next Fetch.
func TestReadDocOp_CancellationDuringFlight(t *testing.T) {
	op, session := newReadOp(t, 0, true, config.NewDefaultTunables())
	session.AsyncCallback = true
	session.Register(nil, fakestorage.NewScript(fakestorage.Page{Rows: []byte("R1")}))

	ctx := context.Background()
	_, err := op.Execute(ctx)
	require.NoError(t, err)

	op.AbortAndWait()

	_, err = op.Fetch(ctx)
	require.ErrorIs(t, err, docerrors.ErrIllegalState)
}

// Backward scans apply a smaller limit than forward scans for the same
// flags.
func TestReadDocOp_BackwardScanAppliesSmallerLimit(t *testing.T) {
	tunables := config.NewDefaultTunables()
	tunables.PrefetchLimit = 100
	tunables.BackwardPrefetchScaleFactor = 0.5

	forwardOp, fwdSession := newReadOp(t, 0, true, tunables)
	fwdSession.Register(nil, fakestorage.NewScript(fakestorage.Page{}))
	forwardOp.SetExecParams(&docop.ExecParameters{LimitUseDefault: true, RowMark: -1})
	backwardOp, bwdSession := newReadOp(t, 0, false, tunables)
	bwdSession.Register(nil, fakestorage.NewScript(fakestorage.Page{}))
	backwardOp.SetExecParams(&docop.ExecParameters{LimitUseDefault: true, RowMark: -1})

	ctx := context.Background()
	_, err := forwardOp.Execute(ctx)
	require.NoError(t, err)
	_, err = backwardOp.Execute(ctx)
	require.NoError(t, err)

	require.Equal(t, uint64(100), forwardOp.Template().Limit)
	require.Equal(t, uint64(50), backwardOp.Template().Limit)
}
