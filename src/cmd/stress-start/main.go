package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"select2speak/src/singleinstance"
)

type stressOptions struct {
	n        int
	command  string
	deadline time.Duration
}

type tally struct {
	ok, busy, absent, failed int32
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
		Use:           "stress-start",
		Short:         "Fire concurrent START or STOP requests at the resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := parseCommand(opts.command)
			if err != nil {
				return err
			}
			t := hammer(cmd.Context(), singleinstance.NewClient, command, opts.n, opts.deadline)
			report(os.Stdout, opts.n, t)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent clients")
	cmd.Flags().StringVar(&opts.command, "cmd", "start", "start|stop")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func parseCommand(s string) (singleinstance.Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return singleinstance.CmdStart, nil
	case "stop":
		return singleinstance.CmdStop, nil
	}
	return "", fmt.Errorf("unknown command %q, want start or stop", s)
}

// hammer sends command from n clients at once. Only one START can win a
// capture; the rest should come back busy or as a dismiss.
func hammer(ctx context.Context, newClient func() singleinstance.Client, command singleinstance.Command, n int, deadline time.Duration) tally {
	if ctx == nil {
		ctx = context.Background()
	}
	var wg sync.WaitGroup
	var t tally
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()
			delegated, _, err := newClient().Send(cctx, command)
			switch {
			case err != nil && strings.Contains(strings.ToLower(err.Error()), "busy"):
				atomic.AddInt32(&t.busy, 1)
			case err != nil:
				atomic.AddInt32(&t.failed, 1)
			case !delegated:
				atomic.AddInt32(&t.absent, 1)
			default:
				atomic.AddInt32(&t.ok, 1)
			}
		}()
	}
	wg.Wait()
	return t
}

func report(w io.Writer, n int, t tally) {
	fmt.Fprintf(w, "launched=%d ok=%d busy=%d absent=%d err=%d\n", n, t.ok, t.busy, t.absent, t.failed)
}
