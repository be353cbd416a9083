// Package session holds the per-activation state the event loop mutates: the
// captured frame, the last finalized selection and the activation flag.
package session

import (
	"errors"
	"image"

	"select2speak/src/gesture"
	"select2speak/src/region"
)

// ErrBusy rejects a start while a capture or narration is in flight.
var ErrBusy = errors.New("busy, please retry")

// Session must only be touched from the event loop goroutine.
type Session struct {
	Frame     image.Image
	Selection *gesture.Selection
	Active    bool
	Capturing bool
	Narrating bool
	// Cycle counts activations, so stale capture results can be told apart.
	Cycle int
}

func New() *Session { return &Session{} }

func (s *Session) Busy() bool { return s.Capturing || s.Narrating }

// BeginCapture marks a capture in flight and returns its cycle number.
func (s *Session) BeginCapture() (int, error) {
	if s.Busy() {
		return 0, ErrBusy
	}
	s.Cycle++
	s.Capturing = true
	s.Frame = nil
	s.Selection = nil
	return s.Cycle, nil
}

// Activate stores frame (possibly nil) and ends the capture phase.
func (s *Session) Activate(frame image.Image) {
	s.Capturing = false
	s.Frame = frame
	s.Selection = nil
	s.Active = true
}

// AbortCapture ends a capture that produced nothing.
func (s *Session) AbortCapture() {
	s.Capturing = false
	s.Frame = nil
}

// Finalize records sel and returns the matching crop of the frame. The crop
// is nil when no frame was captured and empty when sel has no area.
func (s *Session) Finalize(sel gesture.Selection) image.Image {
	s.Selection = &sel
	s.Narrating = true
	crop, _ := region.Extract(s.Frame, sel.P0, sel.P1)
	return crop
}

// Deactivate drops the frame and any selection.
func (s *Session) Deactivate() {
	s.Active = false
	s.Narrating = false
	s.Frame = nil
	s.Selection = nil
}
