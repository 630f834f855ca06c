// Command docopbench drives a ReadDocOp against an in-memory fake
// storage session, for manually exercising the fan-out and paging
// logic without a real tablet server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tabletquery/docop/internal/docop"
	"github.com/tabletquery/docop/internal/server/config"
	"github.com/tabletquery/docop/pkg/fakestorage"
	"github.com/tabletquery/docop/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "docopbench",
		Short: "Exercise the docop execution core against a fake tablet session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), config.TunablesFromViper(v))
		},
	}

	config.BindFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.Flags())

	return cmd
}

func runScan(ctx context.Context, tunables config.Tunables) error {
	log := logger.MustNewZap(zap.NewAtomicLevelAt(zap.InfoLevel))

	descriptor := &fakestorage.TableDescriptor{HashKeyColumns: 2, ForwardScan: true}
	session := fakestorage.NewSession()

	a1 := &docop.PartitionValue{V: 1}
	a2 := &docop.PartitionValue{V: 2}
	b10 := docop.PartitionValue{V: 10}
	b20 := docop.PartitionValue{V: 20}
	b30 := docop.PartitionValue{V: 30}

	for _, a := range []*docop.PartitionValue{a1, a2} {
		for _, b := range []docop.PartitionValue{b10, b20, b30} {
			key := fakestorage.PartitionKey(a.V, b.V)
			session.Register(key, fakestorage.NewScript(fakestorage.Page{
				Rows: []byte(fmt.Sprintf("row(a=%v,b=%v)", a.V, b.V)),
			}))
		}
	}

	op := docop.NewReadDocOp(descriptor, session, tunables, log)
	op.Template().HashPredicates = []docop.PartitionPredicate{
		{In: []docop.PartitionValue{*a1, *a2}},
		{In: []docop.PartitionValue{b10, b20, b30}},
	}
	op.SetExecParams(&docop.ExecParameters{LimitUseDefault: true, RowMark: -1})

	// The core itself never retries a failed dispatch — that policy lives
	// one layer up, here in the harness driving it, the same way a real
	// SQL-layer caller would wrap its own retry/backoff around Execute
	// rather than push it into the op.
	retryPolicy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(func() error {
		_, err := op.Execute(ctx)
		return err
	}, retryPolicy); err != nil {
		return err
	}

	for {
		done, err := op.EndOfResult()
		if err != nil {
			return err
		}
		if done {
			break
		}
		row, err := op.Fetch(ctx)
		if err != nil {
			return err
		}
		if len(row) > 0 {
			log.Info("fetched row", zap.ByteString("row", row))
		}
	}

	return nil
}
