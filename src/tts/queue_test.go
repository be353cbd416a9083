package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingSynth records utterances and blocks each one until released or
// cancelled.
type blockingSynth struct {
	mu      sync.Mutex
	said    []string
	started chan string
	release chan struct{}
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{started: make(chan string, 16), release: make(chan struct{}, 16)}
}

func (s *blockingSynth) Say(ctx context.Context, text string) error {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
	s.started <- text
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSynth) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for utterance completion")
		return nil
	}
}

func waitStarted(t *testing.T, s *blockingSynth, want string) {
	t.Helper()
	select {
	case got := <-s.started:
		if got != want {
			t.Fatalf("started %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q to start", want)
	}
}

func TestAppendIsSerialized(t *testing.T) {
	s := newBlockingSynth()
	q := NewQueue(s)
	defer q.Close()

	ctx := context.Background()
	a := q.Speak(ctx, "one", ModeAppend)
	b := q.Speak(ctx, "two", ModeAppend)

	waitStarted(t, s, "one")
	if !q.Speaking() {
		t.Error("Speaking() = false while an utterance plays")
	}
	select {
	case <-s.started:
		t.Fatal("second utterance started before first finished")
	case <-time.After(50 * time.Millisecond):
	}

	s.release <- struct{}{}
	if err := waitErr(t, a); err != nil {
		t.Fatalf("first: %v", err)
	}
	waitStarted(t, s, "two")
	s.release <- struct{}{}
	if err := waitErr(t, b); err != nil {
		t.Fatalf("second: %v", err)
	}

	got := s.spoken()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("spoken = %v", got)
	}
}

func TestStopCutsCurrentAndDropsPending(t *testing.T) {
	s := newBlockingSynth()
	q := NewQueue(s)
	defer q.Close()

	ctx := context.Background()
	a := q.Speak(ctx, "one", ModeAppend)
	b := q.Speak(ctx, "two", ModeAppend)
	waitStarted(t, s, "one")

	q.Stop()
	if err := waitErr(t, a); !errors.Is(err, ErrStopped) {
		t.Errorf("current = %v, want ErrStopped", err)
	}
	if err := waitErr(t, b); !errors.Is(err, ErrStopped) {
		t.Errorf("pending = %v, want ErrStopped", err)
	}
	if q.Speaking() {
		t.Error("Speaking() = true after Stop")
	}
}

func TestFlushReplacesQueue(t *testing.T) {
	s := newBlockingSynth()
	q := NewQueue(s)
	defer q.Close()

	ctx := context.Background()
	a := q.Speak(ctx, "one", ModeAppend)
	b := q.Speak(ctx, "two", ModeAppend)
	waitStarted(t, s, "one")

	c := q.Speak(ctx, "urgent", ModeFlush)
	if err := waitErr(t, a); !errors.Is(err, ErrStopped) {
		t.Errorf("a = %v, want ErrStopped", err)
	}
	if err := waitErr(t, b); !errors.Is(err, ErrStopped) {
		t.Errorf("b = %v, want ErrStopped", err)
	}
	waitStarted(t, s, "urgent")
	s.release <- struct{}{}
	if err := waitErr(t, c); err != nil {
		t.Errorf("urgent = %v", err)
	}
}

func TestCallerContextCancel(t *testing.T) {
	s := newBlockingSynth()
	q := NewQueue(s)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a := q.Speak(ctx, "one", ModeAppend)
	waitStarted(t, s, "one")
	cancel()
	if err := waitErr(t, a); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSpeakAfterClose(t *testing.T) {
	q := NewQueue(newBlockingSynth())
	q.Close()
	q.Close()
	if err := waitErr(t, q.Speak(context.Background(), "late", ModeAppend)); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
