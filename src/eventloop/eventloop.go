package eventloop

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"select2speak/src/capture"
	"select2speak/src/gesture"
	"select2speak/src/logutil"
	"select2speak/src/narrate"
	"select2speak/src/notification"
	"select2speak/src/overlay"
	"select2speak/src/phrases"
	"select2speak/src/session"
	"select2speak/src/singleinstance"
	"select2speak/src/tts"
	"select2speak/src/worker"
)

// Capturer produces one frame of the screen.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
}

// Submitter runs narration jobs off the loop goroutine.
type Submitter interface {
	Submit(ctx context.Context, crop image.Image, cb worker.ResultCallback) bool
	Close()
}

type Options struct {
	Session  *session.Session
	Tracker  *gesture.Tracker
	Overlay  *overlay.Controller
	Capturer Capturer
	Pool     Submitter
	Speaker  tts.Speaker
	Phrases  phrases.Book
	Notifier notification.Notifier
	// Server is optional; when set, START and STOP arrive over it too.
	Server singleinstance.Server

	NarrationDeadline time.Duration
	// Settle is how long to wait after hiding the control bar before the
	// screen is grabbed. Negative disables the wait.
	Settle time.Duration
	// Welcome is spoken once at startup. DefaultWelcome selects the
	// locale's greeting; empty disables it.
	Welcome string
}

// DefaultWelcome as Options.Welcome speaks the phrasebook greeting.
const DefaultWelcome = "default"

// Status is a snapshot of the loop state.
type Status struct {
	Active    bool
	Capturing bool
	Narrating bool
	Cycle     int
}

// Loop is the single-threaded coordinator. Only its goroutine touches the
// session, the tracker and the overlay controller.
type Loop struct {
	opts Options
	log  zerolog.Logger

	startCh   chan struct{}
	stopCh    chan struct{}
	pointerCh chan gesture.Event
	statusCh  chan chan Status
	captures  chan captureResult
	results   chan narrationResult

	// cancelNarration ends the in-flight narration job, nil when idle.
	cancelNarration context.CancelFunc
}

type captureResult struct {
	cycle int
	frame image.Image
	err   error
}

type narrationResult struct {
	report narrate.Report
	cancel context.CancelFunc
}

// New fills defaults: a 120s narration deadline, a 150ms settle delay and a
// log-only notifier.
func New(opts Options) *Loop {
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Tracker == nil {
		opts.Tracker = gesture.NewTracker(logutil.Component("gesture"), false)
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.Default()
	}
	if opts.NarrationDeadline <= 0 {
		opts.NarrationDeadline = 120 * time.Second
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = 150 * time.Millisecond
	}
	return &Loop{
		opts:      opts,
		log:       logutil.Component("eventloop"),
		startCh:   make(chan struct{}, 4),
		stopCh:    make(chan struct{}, 4),
		pointerCh: make(chan gesture.Event, 256),
		statusCh:  make(chan chan Status),
		captures:  make(chan captureResult, 1),
		results:   make(chan narrationResult, 1),
	}
}

// RequestStart is safe from any goroutine (buttons, tray, hotkey).
func (l *Loop) RequestStart() {
	select {
	case l.startCh <- struct{}{}:
	default:
		l.log.Debug().Msg("start request dropped, queue full")
	}
}

// RequestStop is safe from any goroutine.
func (l *Loop) RequestStop() {
	select {
	case l.stopCh <- struct{}{}:
	default:
	}
}

// Pointer forwards a pointer sample from the surface.
func (l *Loop) Pointer(ev gesture.Event) {
	select {
	case l.pointerCh <- ev:
	default:
		l.log.Warn().Str("action", ev.Action.String()).Msg("pointer event dropped")
	}
}

// Status asks the loop for its current state.
func (l *Loop) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case l.statusCh <- reply:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.opts.Overlay.Init()
	if l.opts.Pool != nil {
		defer l.opts.Pool.Close()
	}

	connCh := l.serve(ctx)
	if l.opts.Server != nil {
		defer l.opts.Server.Close()
	}

	l.opts.Notifier.Notify("select2speak", l.opts.Phrases.Get(phrases.Active))
	if w := l.welcome(); w != "" {
		l.opts.Speaker.Speak(ctx, w, tts.ModeAppend)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.startCh:
			l.handleStart(ctx)
		case <-l.stopCh:
			l.handleStop()
		case ev := <-l.pointerCh:
			l.handlePointer(ctx, ev)
		case res := <-l.captures:
			l.handleCapture(ctx, res)
		case res := <-l.results:
			l.handleResult(res)
		case conn, ok := <-connCh:
			if !ok {
				connCh = nil
				continue
			}
			l.handleConn(ctx, conn)
		case reply := <-l.statusCh:
			reply <- l.status()
		}
	}
}

// serve starts the resident server, if any, and feeds accepted connections
// into the loop. A nil channel disables the case.
func (l *Loop) serve(ctx context.Context) <-chan singleinstance.Conn {
	if l.opts.Server == nil {
		return nil
	}
	if err := l.opts.Server.Start(ctx); err != nil {
		l.log.Warn().Err(err).Msg("resident control unavailable")
		return nil
	}
	l.log.Info().Int("port", l.opts.Server.Port()).Msg("resident listening on 127.0.0.1")

	ch := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(ch)
		for {
			conn, err := l.opts.Server.Next(ctx)
			if err != nil {
				return
			}
			select {
			case ch <- conn:
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}
	}()
	return ch
}

func (l *Loop) welcome() string {
	if strings.EqualFold(l.opts.Welcome, DefaultWelcome) {
		return l.opts.Phrases.Get(phrases.Welcome)
	}
	return l.opts.Welcome
}

func (l *Loop) status() Status {
	s := l.opts.Session
	return Status{Active: s.Active, Capturing: s.Capturing, Narrating: s.Narrating, Cycle: s.Cycle}
}

// handleStart toggles: an active, idle overlay is dismissed, otherwise a new
// capture begins. Returns session.ErrBusy while a capture or narration runs.
func (l *Loop) handleStart(ctx context.Context) (string, error) {
	s := l.opts.Session
	if s.Active && !s.Narrating {
		l.log.Info().Msg("start while active, dismissing overlay")
		l.deactivate()
		return "dismissed", nil
	}
	cycle, err := s.BeginCapture()
	if err != nil {
		l.log.Info().Bool("capturing", s.Capturing).Bool("narrating", s.Narrating).Msg("start ignored, busy")
		return "", err
	}

	l.opts.Overlay.Hide()
	settle := l.opts.Settle
	go func() {
		if settle > 0 {
			select {
			case <-time.After(settle):
			case <-ctx.Done():
				return
			}
		}
		frame, err := l.opts.Capturer.Capture(ctx)
		select {
		case l.captures <- captureResult{cycle: cycle, frame: frame, err: err}:
		case <-ctx.Done():
		}
	}()
	l.log.Info().Int("cycle", cycle).Msg("capture started")
	return "capturing", nil
}

func (l *Loop) handleCapture(ctx context.Context, res captureResult) {
	s := l.opts.Session
	if res.cycle != s.Cycle || !s.Capturing {
		l.log.Debug().Int("cycle", res.cycle).Msg("stale capture result")
		return
	}

	switch {
	case res.err == nil:
		s.Activate(res.frame)
	case errors.Is(res.err, capture.ErrUndecodable):
		l.log.Error().Err(res.err).Msg("activating without bitmap")
		s.Activate(nil)
	default:
		l.log.Error().Err(res.err).Msg("capture failed")
		s.AbortCapture()
		l.opts.Overlay.Deactivate()
		l.opts.Speaker.Speak(ctx, l.opts.Phrases.Get(phrases.NoScreenshot), tts.ModeFlush)
		return
	}

	l.opts.Tracker.Reset()
	l.opts.Overlay.Activate(s.Frame)
	l.opts.Notifier.Notify("select2speak", l.opts.Phrases.Get(phrases.Go))
}

func (l *Loop) handlePointer(ctx context.Context, ev gesture.Event) {
	s := l.opts.Session
	if !s.Active || s.Narrating {
		return
	}
	r := l.opts.Tracker.Handle(ev)
	if r.Redraw {
		l.opts.Overlay.Draw(r.Live)
	}
	if !r.Done {
		return
	}

	crop := s.Finalize(r.Selection)
	jobCtx, cancel := context.WithTimeout(ctx, l.opts.NarrationDeadline)
	entry := l.log.Info().Interface("p0", r.Selection.P0).Interface("p1", r.Selection.P1)
	if crop != nil {
		entry = entry.Int("width", crop.Bounds().Dx()).Int("height", crop.Bounds().Dy())
	}
	entry.Msg("selection finalized")

	submitted := l.opts.Pool.Submit(jobCtx, crop, func(rep narrate.Report) {
		select {
		case l.results <- narrationResult{report: rep, cancel: cancel}:
		case <-ctx.Done():
			cancel()
		}
	})
	if !submitted {
		cancel()
		l.log.Warn().Msg("narration worker busy, selection dropped")
		l.deactivate()
		return
	}
	l.cancelNarration = cancel
}

func (l *Loop) handleResult(res narrationResult) {
	if res.cancel != nil {
		res.cancel()
	}
	l.cancelNarration = nil
	rep := res.report
	l.log.Info().
		Int("blocks", rep.Blocks).
		Int("spoken", rep.Spoken).
		Int("skipped", rep.Skipped).
		Str("fallback", rep.Fallback).
		Bool("stopped", rep.Stopped).
		Msg("narration finished")
	l.deactivate()
}

func (l *Loop) handleStop() {
	l.log.Info().Msg("stop requested")
	// Recognition may still be running with nothing queued yet.
	if l.cancelNarration != nil {
		l.cancelNarration()
	}
	l.opts.Speaker.Stop()
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	defer conn.Close()
	var err error
	switch conn.Request().Command {
	case singleinstance.CmdStart:
		var state string
		if state, err = l.handleStart(ctx); err == nil {
			err = conn.RespondSuccess(state)
		} else {
			err = conn.RespondError(err.Error())
		}
	case singleinstance.CmdStop:
		l.handleStop()
		err = conn.RespondSuccess("stopped")
	default:
		err = conn.RespondError("unknown command")
	}
	if err != nil {
		l.log.Warn().Err(err).Msg("resident response failed")
	}
}

func (l *Loop) deactivate() {
	l.opts.Session.Deactivate()
	l.opts.Tracker.Reset()
	l.opts.Overlay.Deactivate()
}
