package eventloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"select2speak/src/capture"
	"select2speak/src/gesture"
	"select2speak/src/narrate"
	"select2speak/src/ocr"
	"select2speak/src/overlay"
	"select2speak/src/phrases"
	"select2speak/src/singleinstance"
	"select2speak/src/tts"
	"select2speak/src/worker"
)

type fakeSurface struct {
	mu        sync.Mutex
	installed []overlay.Geometry
	removed   int
	selection bool
}

func (f *fakeSurface) Install(g overlay.Geometry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, g)
}
func (f *fakeSurface) Remove()                    { f.mu.Lock(); f.removed++; f.mu.Unlock() }
func (f *fakeSurface) ClearSelection()            {}
func (f *fakeSurface) ShowSelection(v bool)       { f.mu.Lock(); f.selection = v; f.mu.Unlock() }
func (f *fakeSurface) SetStartActive(bool)        {}
func (f *fakeSurface) SetBackground(image.Image)  {}
func (f *fakeSurface) DrawRect(r image.Rectangle) {}

func (f *fakeSurface) last() overlay.Geometry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[len(f.installed)-1]
}

type capturerFunc func(ctx context.Context) (image.Image, error)

func (f capturerFunc) Capture(ctx context.Context) (image.Image, error) { return f(ctx) }

type fakeNarrator struct {
	crops chan image.Image
	hold  chan struct{}
}

func (n *fakeNarrator) Narrate(ctx context.Context, crop image.Image) narrate.Report {
	n.crops <- crop
	if n.hold != nil {
		<-n.hold
	}
	return narrate.Report{Spoken: 1}
}

type fakeSpeaker struct {
	mu    sync.Mutex
	said  []string
	stops int
}

func (s *fakeSpeaker) Speak(_ context.Context, text string, _ tts.Mode) <-chan error {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (s *fakeSpeaker) Stop() { s.mu.Lock(); s.stops++; s.mu.Unlock() }

func (s *fakeSpeaker) utterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type harness struct {
	loop     *Loop
	surface  *fakeSurface
	narrator *fakeNarrator
	speaker  *fakeSpeaker
	notes    chan string
	cancel   context.CancelFunc
	done     chan error
}

func start(t *testing.T, capt Capturer, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		surface:  &fakeSurface{},
		narrator: &fakeNarrator{crops: make(chan image.Image, 4)},
		speaker:  &fakeSpeaker{},
		notes:    make(chan string, 16),
		done:     make(chan error, 1),
	}
	opts := Options{
		Tracker:  gesture.NewTracker(zerolog.Nop(), false),
		Overlay:  overlay.NewController(h.surface),
		Capturer: capt,
		Pool:     worker.New(h.narrator, 1),
		Speaker:  h.speaker,
		Phrases:  phrases.For("en"),
		Settle:   -1,
		Notifier: notifierFunc(func(_, body string) { h.notes <- body }),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.loop = New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

type notifierFunc func(title, body string)

func (f notifierFunc) Notify(title, body string) { f(title, body) }

func (h *harness) waitFor(t *testing.T, what string, pred func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		st, err := h.loop.Status(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if pred(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; status %+v", what, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func frame() image.Image { return image.NewRGBA(image.Rect(0, 0, 1080, 1920)) }

func okCapture(context.Context) (image.Image, error) { return frame(), nil }

func drag(l *Loop, x0, y0, x1, y1 int) {
	l.Pointer(gesture.Event{Action: gesture.Down, X: x0, Y: y0})
	l.Pointer(gesture.Event{Action: gesture.Move, X: x1, Y: y1})
	l.Pointer(gesture.Event{Action: gesture.Up, X: x1, Y: y1})
}

func TestFullCycle(t *testing.T) {
	h := start(t, capturerFunc(okCapture), nil)

	h.loop.RequestStart()
	h.waitFor(t, "activation", func(s Status) bool { return s.Active })
	if h.surface.last() != overlay.Fullscreen {
		t.Errorf("geometry = %v, want fullscreen", h.surface.last())
	}

	drag(h.loop, 10, 10, 50, 80)
	select {
	case crop := <-h.narrator.crops:
		if crop == nil || crop.Bounds().Dx() != 40 || crop.Bounds().Dy() != 70 {
			t.Fatalf("crop = %v", crop)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("narrator not invoked")
	}

	h.waitFor(t, "deactivation", func(s Status) bool { return !s.Active && !s.Narrating })
	if h.surface.last() != overlay.Compact {
		t.Errorf("geometry = %v, want compact", h.surface.last())
	}
}

func TestNotificationsOnStartAndActivate(t *testing.T) {
	h := start(t, capturerFunc(okCapture), nil)
	if got := <-h.notes; got != "select2speak active!" {
		t.Errorf("first note = %q", got)
	}
	h.loop.RequestStart()
	select {
	case got := <-h.notes:
		if got != "GO :)" {
			t.Errorf("activation note = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no activation notification")
	}
}

func TestCaptureFailureSpeaksNoScreenshot(t *testing.T) {
	h := start(t, capturerFunc(func(context.Context) (image.Image, error) {
		return nil, fmt.Errorf("%w: timeout", capture.ErrNoScreenshot)
	}), nil)

	h.loop.RequestStart()
	st := h.waitFor(t, "capture end", func(s Status) bool { return s.Cycle == 1 && !s.Capturing })
	if st.Active {
		t.Fatal("overlay activated after failed capture")
	}
	said := h.speaker.utterances()
	if len(said) != 1 || said[0] != "No screenshot" {
		t.Errorf("utterances = %q", said)
	}
	if h.surface.last() != overlay.Compact {
		t.Errorf("control bar not restored")
	}
}

func TestUndecodableActivatesWithoutBitmap(t *testing.T) {
	h := start(t, capturerFunc(func(context.Context) (image.Image, error) {
		return nil, fmt.Errorf("%w: bad png", capture.ErrUndecodable)
	}), nil)

	h.loop.RequestStart()
	h.waitFor(t, "activation", func(s Status) bool { return s.Active })
	drag(h.loop, 1, 1, 20, 20)
	select {
	case crop := <-h.narrator.crops:
		if crop != nil {
			t.Fatalf("crop = %v, want nil", crop.Bounds())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("narrator not invoked")
	}
}

func TestStartWhileActiveDismisses(t *testing.T) {
	h := start(t, capturerFunc(okCapture), nil)
	h.loop.RequestStart()
	h.waitFor(t, "activation", func(s Status) bool { return s.Active })

	h.loop.RequestStart()
	st := h.waitFor(t, "dismissal", func(s Status) bool { return !s.Active })
	if st.Cycle != 1 {
		t.Errorf("cycle = %d, toggle must not start another capture", st.Cycle)
	}
}

func TestStartWhileCapturingIsIgnored(t *testing.T) {
	release := make(chan struct{})
	h := start(t, capturerFunc(func(ctx context.Context) (image.Image, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return frame(), nil
	}), nil)

	h.loop.RequestStart()
	h.waitFor(t, "capturing", func(s Status) bool { return s.Capturing })
	h.loop.RequestStart()
	close(release)
	st := h.waitFor(t, "activation", func(s Status) bool { return s.Active })
	if st.Cycle != 1 {
		t.Errorf("cycle = %d, busy start should be ignored", st.Cycle)
	}
}

func TestPointerIgnoredWhileInactive(t *testing.T) {
	h := start(t, capturerFunc(okCapture), nil)
	drag(h.loop, 1, 1, 30, 30)
	h.waitFor(t, "loop idle", func(Status) bool { return true })
	select {
	case <-h.narrator.crops:
		t.Fatal("narration ran while inactive")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGesturesIgnoredWhileNarrating(t *testing.T) {
	h := start(t, capturerFunc(okCapture), nil)
	h.narrator.hold = make(chan struct{})

	h.loop.RequestStart()
	h.waitFor(t, "activation", func(s Status) bool { return s.Active })
	drag(h.loop, 0, 0, 10, 10)
	<-h.narrator.crops
	drag(h.loop, 0, 0, 20, 20)
	h.waitFor(t, "narrating", func(s Status) bool { return s.Narrating })
	close(h.narrator.hold)
	h.waitFor(t, "deactivation", func(s Status) bool { return !s.Active })

	select {
	case <-h.narrator.crops:
		t.Fatal("second selection narrated while busy")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopFlushesSpeech(t *testing.T) {
	h := start(t, capturerFunc(okCapture), nil)
	h.loop.RequestStop()
	h.waitFor(t, "stop handled", func(Status) bool {
		h.speaker.mu.Lock()
		defer h.speaker.mu.Unlock()
		return h.speaker.stops == 1
	})
}

func TestWelcomeMessage(t *testing.T) {
	h := start(t, capturerFunc(okCapture), func(o *Options) { o.Welcome = "hello" })
	h.waitFor(t, "welcome", func(Status) bool { return len(h.speaker.utterances()) == 1 })
	if got := h.speaker.utterances()[0]; got != "hello" {
		t.Errorf("welcome = %q", got)
	}
}

func TestDefaultWelcomeUsesPhrasebook(t *testing.T) {
	h := start(t, capturerFunc(okCapture), func(o *Options) {
		o.Welcome = "Default"
		o.Phrases = phrases.For("it")
	})
	h.waitFor(t, "welcome", func(Status) bool { return len(h.speaker.utterances()) == 1 })
	if got := h.speaker.utterances()[0]; got != "Seleziona per ascoltare è pronto" {
		t.Errorf("welcome = %q", got)
	}
}

type fakeConn struct {
	cmd  singleinstance.Command
	resp chan string
}

func (c *fakeConn) Request() singleinstance.Request { return singleinstance.Request{Command: c.cmd} }
func (c *fakeConn) RespondSuccess(text string) error {
	c.resp <- "ok:" + text
	return nil
}
func (c *fakeConn) RespondError(msg string) error {
	c.resp <- "err:" + msg
	return nil
}
func (c *fakeConn) Close() error { return nil }

type fakeServer struct {
	conns chan singleinstance.Conn
}

func (s *fakeServer) Start(context.Context) error { return nil }
func (s *fakeServer) Port() int                   { return 49560 }
func (s *fakeServer) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (s *fakeServer) Close() error { return nil }

func TestResidentCommands(t *testing.T) {
	srv := &fakeServer{conns: make(chan singleinstance.Conn)}
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	h := start(t, capturerFunc(func(ctx context.Context) (image.Image, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, errors.New("cancelled")
	}), func(o *Options) { o.Server = srv })

	send := func(cmd singleinstance.Command) string {
		c := &fakeConn{cmd: cmd, resp: make(chan string, 1)}
		srv.conns <- c
		select {
		case r := <-c.resp:
			return r
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: no response", cmd)
			return ""
		}
	}

	if got := send(singleinstance.CmdStart); got != "ok:capturing" {
		t.Errorf("START = %q", got)
	}
	if got := send(singleinstance.CmdStart); got != "err:busy, please retry" {
		t.Errorf("START while busy = %q", got)
	}
	if got := send(singleinstance.CmdStop); got != "ok:stopped" {
		t.Errorf("STOP = %q", got)
	}
	_ = h
}

// slowRecognizer holds recognition until released and ignores ctx, like an
// engine stuck in a blocking call.
type slowRecognizer struct {
	entered chan struct{}
	release chan struct{}
}

func (r *slowRecognizer) Recognize(context.Context, image.Image) ([]ocr.Block, error) {
	r.entered <- struct{}{}
	<-r.release
	return []ocr.Block{{Text: "one"}, {Text: "two"}, {Text: "three"}}, nil
}
func (r *slowRecognizer) Probe(context.Context) error { return nil }
func (r *slowRecognizer) Close() error                { return nil }

func TestStopDuringRecognitionEndsPass(t *testing.T) {
	rec := &slowRecognizer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	var sp *fakeSpeaker
	h := start(t, capturerFunc(okCapture), func(o *Options) {
		sp = o.Speaker.(*fakeSpeaker)
		o.Pool = worker.New(narrate.New(narrate.Options{
			Recognizer: rec,
			Speaker:    sp,
			Phrases:    phrases.For("en"),
		}), 1)
	})

	h.loop.RequestStart()
	h.waitFor(t, "activation", func(s Status) bool { return s.Active })
	drag(h.loop, 10, 10, 50, 80)
	select {
	case <-rec.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition not started")
	}
	h.waitFor(t, "narrating", func(s Status) bool { return s.Narrating })

	h.loop.RequestStop()
	deadline := time.Now().Add(2 * time.Second)
	for {
		sp.mu.Lock()
		stops := sp.stops
		sp.mu.Unlock()
		if stops > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stop not handled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(rec.release)

	h.waitFor(t, "deactivation", func(s Status) bool { return !s.Active && !s.Narrating })
	if said := sp.utterances(); len(said) != 0 {
		t.Errorf("spoken after stop: %q", said)
	}
}
