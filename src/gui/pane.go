package gui

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"select2speak/src/gesture"
)

var (
	outlineColor  = color.NRGBA{R: 0x00, G: 0x00, B: 0xff, A: 0xff}
	backdropColor = color.NRGBA{A: 0x80}
)

const (
	outlineStroke = 10
	outlineRadius = 25
)

// selectionPane shows the captured frame and turns mouse input into pointer
// events in frame pixels.
type selectionPane struct {
	widget.BaseWidget

	backdrop *canvas.Rectangle
	bg       *canvas.Image
	outline  *canvas.Rectangle
	// frame is the pixel size of the background, zero without one.
	frame image.Point

	dragging bool
	last     fyne.Position

	onPointer func(gesture.Event)
}

var (
	_ desktop.Mouseable = (*selectionPane)(nil)
	_ fyne.Draggable    = (*selectionPane)(nil)
)

func newSelectionPane(onPointer func(gesture.Event)) *selectionPane {
	p := &selectionPane{
		backdrop:  canvas.NewRectangle(backdropColor),
		bg:        canvas.NewImageFromImage(nil),
		outline:   canvas.NewRectangle(color.Transparent),
		onPointer: onPointer,
	}
	p.bg.FillMode = canvas.ImageFillStretch
	p.outline.StrokeColor = outlineColor
	p.outline.StrokeWidth = outlineStroke
	p.outline.CornerRadius = outlineRadius
	p.outline.Hide()
	p.ExtendBaseWidget(p)
	return p
}

func (p *selectionPane) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewStack(p.backdrop, p.bg, container.NewWithoutLayout(p.outline)))
}

func (p *selectionPane) setFrame(img image.Image) {
	p.bg.Image = img
	if img == nil {
		p.frame = image.Point{}
	} else {
		p.frame = img.Bounds().Size()
	}
	p.bg.Refresh()
}

func (p *selectionPane) clear() {
	p.outline.Hide()
	p.dragging = false
}

// drawRect outlines r, given in frame pixels.
func (p *selectionPane) drawRect(r image.Rectangle) {
	pos, size := scaleToPane(r, p.Size(), p.frame)
	p.outline.Move(pos)
	p.outline.Resize(size)
	p.outline.Show()
	p.outline.Refresh()
}

func (p *selectionPane) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	p.dragging = false
	p.emit(gesture.Down, e.Position)
}

func (p *selectionPane) Dragged(e *fyne.DragEvent) {
	p.dragging = true
	p.last = e.Position
	p.emit(gesture.Move, e.Position)
}

// DragEnd and MouseUp may arrive in either order; whichever is first ends
// the drag.
func (p *selectionPane) DragEnd() {
	if p.dragging {
		p.dragging = false
		p.emit(gesture.Up, p.last)
	}
}

func (p *selectionPane) MouseUp(e *desktop.MouseEvent) {
	if p.dragging {
		p.dragging = false
		p.emit(gesture.Up, e.Position)
	}
}

func (p *selectionPane) emit(a gesture.Action, pos fyne.Position) {
	if p.onPointer == nil {
		return
	}
	pt := scaleToFrame(pos, p.Size(), p.frame)
	p.onPointer(gesture.Event{Action: a, X: pt.X, Y: pt.Y})
}

// scaleToFrame maps a pane position to frame pixels. The frame is stretched
// over the pane. Without a frame, pane units are used as-is.
func scaleToFrame(pos fyne.Position, pane fyne.Size, frame image.Point) image.Point {
	if frame == (image.Point{}) || pane.Width <= 0 || pane.Height <= 0 {
		return image.Pt(int(pos.X), int(pos.Y))
	}
	return image.Pt(
		int(pos.X*float32(frame.X)/pane.Width),
		int(pos.Y*float32(frame.Y)/pane.Height),
	)
}

// scaleToPane is the inverse of scaleToFrame for a rectangle.
func scaleToPane(r image.Rectangle, pane fyne.Size, frame image.Point) (fyne.Position, fyne.Size) {
	r = r.Canon()
	sx, sy := float32(1), float32(1)
	if frame != (image.Point{}) && pane.Width > 0 && pane.Height > 0 {
		sx = pane.Width / float32(frame.X)
		sy = pane.Height / float32(frame.Y)
	}
	return fyne.NewPos(float32(r.Min.X)*sx, float32(r.Min.Y)*sy),
		fyne.NewSize(float32(r.Dx())*sx, float32(r.Dy())*sy)
}
