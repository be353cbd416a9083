// Package overlay owns the activation state of the selection surface and the
// window geometry that goes with it.
package overlay

import (
	"image"

	"github.com/rs/zerolog"

	"select2speak/src/logutil"
)

type Geometry int

const (
	// Compact is the small always-on-top control bar with Start and Stop.
	Compact Geometry = iota
	// Fullscreen covers the virtual screen with the captured frame.
	Fullscreen
)

func (g Geometry) String() string {
	if g == Fullscreen {
		return "fullscreen"
	}
	return "compact"
}

// Surface is the host window. A geometry change on an installed window must
// go through Remove followed by Install.
type Surface interface {
	Install(g Geometry)
	Remove()
	ClearSelection()
	ShowSelection(visible bool)
	SetStartActive(active bool)
	SetBackground(frame image.Image)
	DrawRect(r image.Rectangle)
}

// Controller is owned by the event loop goroutine.
type Controller struct {
	surface  Surface
	log      zerolog.Logger
	created  bool
	shown    bool
	geometry Geometry
	active   bool
}

func NewController(s Surface) *Controller {
	return &Controller{surface: s, log: logutil.Component("overlay")}
}

// Init installs the compact control. Calling it again is a no-op.
func (c *Controller) Init() {
	if c.created {
		return
	}
	c.apply(Compact)
	c.surface.ShowSelection(false)
	c.surface.SetStartActive(false)
}

func (c *Controller) Active() bool { return c.active }

func (c *Controller) Geometry() Geometry { return c.geometry }

// Hide takes the window off screen, for example while a capture runs.
func (c *Controller) Hide() {
	if !c.shown {
		return
	}
	c.surface.Remove()
	c.shown = false
}

// Activate shows frame fullscreen with an empty selection pane. A nil frame
// still activates; the pane then has no background.
func (c *Controller) Activate(frame image.Image) {
	c.surface.SetBackground(frame)
	c.apply(Fullscreen)
	c.surface.ClearSelection()
	c.surface.ShowSelection(true)
	c.surface.SetStartActive(true)
	c.active = true
	c.log.Info().Bool("frame", frame != nil).Msg("activated")
}

// Deactivate returns to the compact control.
func (c *Controller) Deactivate() {
	c.surface.ShowSelection(false)
	c.surface.ClearSelection()
	c.surface.SetBackground(nil)
	c.apply(Compact)
	c.surface.SetStartActive(false)
	if c.active {
		c.log.Info().Msg("deactivated")
	}
	c.active = false
}

// Draw outlines r while active; it is ignored otherwise.
func (c *Controller) Draw(r image.Rectangle) {
	if c.active {
		c.surface.DrawRect(r)
	}
}

func (c *Controller) apply(g Geometry) {
	switch {
	case !c.created:
		c.surface.Install(g)
		c.created = true
	case !c.shown:
		c.surface.Install(g)
	case g != c.geometry:
		c.surface.Remove()
		c.surface.Install(g)
	default:
		return
	}
	c.shown = true
	c.geometry = g
	c.log.Debug().Str("geometry", g.String()).Msg("layout installed")
}
