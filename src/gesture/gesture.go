// Package gesture tracks pointer down/move/up sequences and finalizes a
// selection rectangle when a drag ends.
package gesture

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
)

type Action int

const (
	Down Action = iota
	Move
	Up
)

func (a Action) String() string {
	switch a {
	case Down:
		return "DOWN"
	case Move:
		return "MOVE"
	case Up:
		return "UP"
	default:
		return fmt.Sprintf("ACTION(%d)", int(a))
	}
}

type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "TRACKING"
	}
	return "IDLE"
}

// Event is one pointer sample in frame pixel coordinates.
type Event struct {
	Action Action
	X, Y   int
}

// Selection is a finalized pair of corners, in the order they were drawn.
type Selection struct {
	P0, P1 image.Point
}

// Result reports what a single event did to the tracker.
type Result struct {
	// Redraw is set when the live rectangle changed.
	Redraw bool
	// Live is the rectangle to outline while tracking.
	Live image.Rectangle
	// Done is set when Selection holds a finalized gesture.
	Done      bool
	Selection Selection
}

// Tracker is not safe for concurrent use; the event loop owns it.
type Tracker struct {
	state    State
	lastMove bool
	p0, p1   image.Point
	verbose  bool
	log      zerolog.Logger
}

func NewTracker(log zerolog.Logger, verbose bool) *Tracker {
	return &Tracker{log: log, verbose: verbose}
}

func (t *Tracker) State() State { return t.state }

// Reset drops any gesture in progress.
func (t *Tracker) Reset() {
	t.state = Idle
	t.lastMove = false
	t.p0, t.p1 = image.Point{}, image.Point{}
}

// Handle advances the state machine. Negative coordinates are clamped to 0.
func (t *Tracker) Handle(ev Event) Result {
	pt := image.Pt(max(ev.X, 0), max(ev.Y, 0))
	if t.verbose {
		t.log.Debug().Str("action", ev.Action.String()).Int("x", pt.X).Int("y", pt.Y).Str("state", t.state.String()).Msg("pointer")
	}

	switch ev.Action {
	case Down:
		t.state = Tracking
		t.lastMove = false
		t.p0, t.p1 = pt, pt
		return Result{Redraw: true, Live: image.Rectangle{Min: pt, Max: pt}}

	case Move:
		if t.state != Tracking {
			return Result{}
		}
		t.p1 = pt
		t.lastMove = true
		return Result{Redraw: true, Live: image.Rectangle{Min: t.p0, Max: t.p1}.Canon()}

	case Up:
		if t.state != Tracking || !t.lastMove {
			t.log.Debug().Msg("pointer up without drag ignored")
			t.Reset()
			return Result{}
		}
		t.p1 = pt
		sel := Selection{P0: t.p0, P1: t.p1}
		t.state = Idle
		t.lastMove = false
		return Result{Done: true, Selection: sel}

	default:
		t.log.Warn().Int("action", int(ev.Action)).Msg("unrecognized pointer action")
		// Only a move directly before the release counts as a drag.
		t.lastMove = false
		return Result{}
	}
}
