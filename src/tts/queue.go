// Package tts serializes utterances onto a single synthesizer and reports
// completion per utterance.
package tts

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"select2speak/src/logutil"
)

type Mode int

const (
	// ModeAppend queues behind whatever is already pending.
	ModeAppend Mode = iota
	// ModeFlush drops pending utterances and cuts the current one.
	ModeFlush
)

var (
	ErrStopped = errors.New("tts: utterance stopped")
	ErrClosed  = errors.New("tts: queue closed")
)

// Synthesizer speaks one utterance and returns once it has finished playing
// or ctx is cancelled.
type Synthesizer interface {
	Say(ctx context.Context, text string) error
}

// Speaker is the narration-facing side of the queue.
type Speaker interface {
	Speak(ctx context.Context, text string, mode Mode) <-chan error
	Stop()
}

type utterance struct {
	ctx  context.Context
	text string
	done chan error
}

type Queue struct {
	synth Synthesizer
	log   zerolog.Logger

	mu        sync.Mutex
	pending   []*utterance
	current   *utterance
	cancelCur context.CancelFunc
	stopped   bool
	closed    bool

	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

func NewQueue(synth Synthesizer) *Queue {
	q := &Queue{
		synth: synth,
		log:   logutil.Component("tts"),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Speak enqueues text. The returned channel receives exactly one value: nil
// when the utterance finished, ErrStopped when it was dropped or cut, or the
// synthesizer/context error.
func (q *Queue) Speak(ctx context.Context, text string, mode Mode) <-chan error {
	u := &utterance{ctx: ctx, text: text, done: make(chan error, 1)}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		u.done <- ErrClosed
		return u.done
	}
	if mode == ModeFlush {
		q.dropLocked()
	}
	q.pending = append(q.pending, u)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return u.done
}

// Speaking reports whether an utterance is playing or pending.
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil || len(q.pending) > 0
}

// Stop silences the synthesizer immediately and drops everything pending.
func (q *Queue) Stop() {
	q.mu.Lock()
	n := len(q.pending)
	playing := q.current != nil
	q.dropLocked()
	q.mu.Unlock()
	if n > 0 || playing {
		q.log.Info().Int("dropped", n).Bool("cut", playing).Msg("speech stopped")
	}
}

func (q *Queue) dropLocked() {
	for _, u := range q.pending {
		u.done <- ErrStopped
	}
	q.pending = nil
	if q.cancelCur != nil {
		q.stopped = true
		q.cancelCur()
	}
}

// Close stops speech and waits for the worker goroutine to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.dropLocked()
	q.mu.Unlock()
	close(q.quit)
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
		}
		for q.next() {
		}
	}
}

// next plays the head of the queue; it returns false when the queue is empty.
func (q *Queue) next() bool {
	q.mu.Lock()
	if len(q.pending) == 0 || q.closed {
		q.mu.Unlock()
		return false
	}
	u := q.pending[0]
	q.pending = q.pending[1:]
	ctx, cancel := context.WithCancel(u.ctx)
	q.current = u
	q.cancelCur = cancel
	q.stopped = false
	q.mu.Unlock()

	err := u.ctx.Err()
	if err == nil {
		q.log.Debug().Str("text", logutil.Preview(u.text, 60)).Msg("speaking")
		err = q.synth.Say(ctx, u.text)
	}
	cancel()

	q.mu.Lock()
	stopped := q.stopped
	q.current = nil
	q.cancelCur = nil
	q.stopped = false
	q.mu.Unlock()

	switch {
	case stopped && u.ctx.Err() == nil:
		err = ErrStopped
	case u.ctx.Err() != nil:
		err = u.ctx.Err()
	}
	u.done <- err
	return true
}
