package gesture

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDragFinalizes(t *testing.T) {
	tr := NewTracker(zerolog.Nop(), false)

	if r := tr.Handle(Event{Action: Down, X: 10, Y: 10}); !r.Redraw || r.Done {
		t.Fatalf("down: %+v", r)
	}
	if tr.State() != Tracking {
		t.Fatalf("state after down = %v", tr.State())
	}
	r := tr.Handle(Event{Action: Move, X: 30, Y: 5})
	if !r.Redraw || r.Live != image.Rect(10, 5, 30, 10) {
		t.Fatalf("move: %+v", r)
	}
	r = tr.Handle(Event{Action: Up, X: 50, Y: 80})
	if !r.Done {
		t.Fatalf("up after move should finalize: %+v", r)
	}
	want := Selection{P0: image.Pt(10, 10), P1: image.Pt(50, 80)}
	if r.Selection != want {
		t.Errorf("selection = %+v, want %+v", r.Selection, want)
	}
	if tr.State() != Idle {
		t.Errorf("state after up = %v, want IDLE", tr.State())
	}
}

func TestTapWithoutMoveIsIgnored(t *testing.T) {
	tr := NewTracker(zerolog.Nop(), false)
	tr.Handle(Event{Action: Down, X: 40, Y: 40})
	if r := tr.Handle(Event{Action: Up, X: 40, Y: 40}); r.Done {
		t.Fatalf("tap must not finalize: %+v", r)
	}
	if tr.State() != Idle {
		t.Errorf("state = %v, want IDLE", tr.State())
	}
}

func TestUpWithoutDownIsIgnored(t *testing.T) {
	tr := NewTracker(zerolog.Nop(), false)
	if r := tr.Handle(Event{Action: Move, X: 5, Y: 5}); r.Redraw {
		t.Errorf("move while idle should not redraw")
	}
	if r := tr.Handle(Event{Action: Up, X: 5, Y: 5}); r.Done {
		t.Errorf("up while idle should not finalize")
	}
}

func TestDownResetsPreviousGesture(t *testing.T) {
	tr := NewTracker(zerolog.Nop(), false)
	tr.Handle(Event{Action: Down, X: 1, Y: 1})
	tr.Handle(Event{Action: Move, X: 9, Y: 9})
	tr.Handle(Event{Action: Down, X: 100, Y: 100})
	if r := tr.Handle(Event{Action: Up, X: 100, Y: 100}); r.Done {
		t.Fatalf("new down must reset the move flag: %+v", r)
	}
}

func TestNegativeCoordinatesClamped(t *testing.T) {
	tr := NewTracker(zerolog.Nop(), false)
	tr.Handle(Event{Action: Down, X: -5, Y: 20})
	tr.Handle(Event{Action: Move, X: 10, Y: -3})
	r := tr.Handle(Event{Action: Up, X: 10, Y: -3})
	want := Selection{P0: image.Pt(0, 20), P1: image.Pt(10, 0)}
	if !r.Done || r.Selection != want {
		t.Errorf("got %+v, want %+v", r, want)
	}
}

func TestUnknownActionLogged(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(zerolog.New(&buf), false)
	tr.Handle(Event{Action: Down, X: 1, Y: 1})
	if r := tr.Handle(Event{Action: Action(42), X: 1, Y: 1}); r.Redraw || r.Done {
		t.Errorf("unknown action changed output: %+v", r)
	}
	if !strings.Contains(buf.String(), "unrecognized pointer action") {
		t.Errorf("expected warning, got %q", buf.String())
	}
	if tr.State() != Tracking {
		t.Errorf("unknown action must not change state")
	}
}

func TestUnknownActionBreaksDrag(t *testing.T) {
	tr := NewTracker(zerolog.Nop(), false)
	tr.Handle(Event{Action: Down, X: 5, Y: 5})
	tr.Handle(Event{Action: Move, X: 50, Y: 50})
	tr.Handle(Event{Action: Action(42), X: 50, Y: 50})
	if r := tr.Handle(Event{Action: Up, X: 60, Y: 60}); r.Done {
		t.Errorf("up after unknown action finalized: %+v", r)
	}
	if tr.State() != Idle {
		t.Errorf("state = %v, want IDLE", tr.State())
	}
}

func TestVerboseLogsEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(zerolog.New(&buf).Level(zerolog.DebugLevel), true)
	tr.Handle(Event{Action: Down, X: 1, Y: 2})
	tr.Handle(Event{Action: Move, X: 3, Y: 4})
	if n := strings.Count(buf.String(), `"message":"pointer"`); n != 2 {
		t.Errorf("pointer log lines = %d, want 2: %s", n, buf.String())
	}
}
