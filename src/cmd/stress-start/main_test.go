package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"select2speak/src/singleinstance"
)

func TestNewRootCmdDefaults(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 50 {
		t.Fatalf("Expected default n=50, got %d", opts.n)
	}
	if opts.command != "start" {
		t.Fatalf("Expected default cmd=start, got %q", opts.command)
	}
	if opts.deadline != 5*time.Second {
		t.Fatalf("Expected default deadline=5s, got %v", opts.deadline)
	}
}

func TestNewRootCmdCustomFlags(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--n", "3", "--cmd", "stop", "--deadline", "7s"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 3 || opts.command != "stop" || opts.deadline != 7*time.Second {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestParseCommand(t *testing.T) {
	if c, err := parseCommand(" STOP "); err != nil || c != singleinstance.CmdStop {
		t.Errorf("parseCommand(STOP) = %q, %v", c, err)
	}
	if _, err := parseCommand("restart"); err == nil {
		t.Error("expected error for unknown command")
	}
}

// firstWins lets one START through and reports busy for the rest.
type firstWins struct{ taken *int32 }

func (f firstWins) Send(context.Context, singleinstance.Command) (bool, string, error) {
	if atomic.CompareAndSwapInt32(f.taken, 0, 1) {
		return true, "capturing", nil
	}
	return true, "", errors.New("busy, please retry")
}

func TestHammerCountsOutcomes(t *testing.T) {
	var taken int32
	newClient := func() singleinstance.Client { return firstWins{taken: &taken} }

	got := hammer(context.Background(), newClient, singleinstance.CmdStart, 10, time.Second)
	if got.ok != 1 || got.busy != 9 || got.failed != 0 || got.absent != 0 {
		t.Fatalf("tally = %+v", got)
	}

	var out bytes.Buffer
	report(&out, 10, got)
	if out.String() != "launched=10 ok=1 busy=9 absent=0 err=0\n" {
		t.Errorf("report = %q", out.String())
	}
}

type noResident struct{}

func (noResident) Send(context.Context, singleinstance.Command) (bool, string, error) {
	return false, "", nil
}

func TestHammerNoResident(t *testing.T) {
	got := hammer(context.Background(), func() singleinstance.Client { return noResident{} }, singleinstance.CmdStop, 4, time.Second)
	if got.absent != 4 {
		t.Fatalf("tally = %+v", got)
	}
}
