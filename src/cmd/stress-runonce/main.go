package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"screenshotr/src/singleinstance"
)

type stressOptions struct {
	n           int
	concurrency int
	mode        string
	deadline    time.Duration
}

// tally counts delegated outcomes. A resident handles one capture at a
// time, so most concurrent clients are expected to see "busy".
type tally struct {
	ok, busy, cancelled, noResident, failed atomic.Int32
}

func (t *tally) String() string {
	return fmt.Sprintf("ok=%d busy=%d cancelled=%d no-resident=%d err=%d",
		t.ok.Load(), t.busy.Load(), t.cancelled.Load(), t.noResident.Load(), t.failed.Load())
}

func (t *tally) record(delegated bool, err error) {
	switch {
	case !delegated && err == nil:
		t.noResident.Add(1)
	case err == nil:
		t.ok.Add(1)
	case errors.Is(err, singleinstance.ErrCancelled):
		t.cancelled.Add(1)
	case strings.Contains(strings.ToLower(err.Error()), "busy"):
		t.busy.Add(1)
	default:
		t.failed.Add(1)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation against a resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != "std" && opts.mode != "clip" {
				return fmt.Errorf("unknown mode %q (want std or clip)", opts.mode)
			}
			return runWithOptions(cmd.Context(), *opts, singleinstance.NewClient, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "max clients in flight (0 = all at once)")
	cmd.Flags().StringVar(&opts.mode, "mode", "std", "std|clip: run-once-std (stdout) or run-once (clipboard)")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func runWithOptions(ctx context.Context, opts stressOptions, newClient func() singleinstance.Client, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var t tally
	g, ctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, opts.deadline)
			defer cancel()
			delegated, _, err := newClient().TryRunOnce(cctx, opts.mode == "std")
			t.record(delegated, err)
			return nil
		})
	}
	_ = g.Wait()
	_, err := fmt.Fprintf(w, "launched=%d %s elapsed=%s\n", opts.n, &t, time.Since(start).Round(time.Millisecond))
	return err
}
