// Package gui hosts the overlay in a fyne window: a compact Start/Stop bar
// that turns into a fullscreen selection surface over the captured frame.
package gui

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"select2speak/src/gesture"
	"select2speak/src/logutil"
	"select2speak/src/overlay"
)

const appTitle = "select2speak"

// Callbacks are invoked on the fyne goroutine and must not block.
type Callbacks struct {
	OnStart   func()
	OnStop    func()
	OnPointer func(gesture.Event)
	OnQuit    func()
}

// Window implements overlay.Surface. Every method may be called from any
// goroutine; changes are applied on the fyne goroutine in call order.
type Window struct {
	app fyne.App
	win fyne.Window
	cb  Callbacks
	log zerolog.Logger

	compact   fyne.CanvasObject
	full      fyne.CanvasObject
	startBtns []*widget.Button
	pane      *selectionPane
}

var _ overlay.Surface = (*Window)(nil)

// New builds the window. It is not shown until the first Install.
func New(a fyne.App, cb Callbacks) *Window {
	w := &Window{app: a, cb: cb, log: logutil.Component("gui")}
	w.win = a.NewWindow(appTitle)
	w.win.SetPadded(false)
	w.win.SetCloseIntercept(w.quit)

	w.pane = newSelectionPane(cb.OnPointer)
	w.compact = container.NewHBox(w.newStart(), w.newStop())
	w.full = container.NewBorder(container.NewHBox(w.newStart(), w.newStop()), nil, nil, nil, w.pane)
	return w
}

func (w *Window) newStart() *widget.Button {
	b := widget.NewButton("Start", func() { call(w.cb.OnStart) })
	w.startBtns = append(w.startBtns, b)
	return b
}

func (w *Window) newStop() *widget.Button {
	return widget.NewButton("Stop", func() { call(w.cb.OnStop) })
}

func (w *Window) Install(g overlay.Geometry) {
	fyne.Do(func() {
		switch g {
		case overlay.Fullscreen:
			w.win.SetContent(w.full)
			w.win.SetFullScreen(true)
		default:
			w.win.SetFullScreen(false)
			w.win.SetContent(w.compact)
			w.win.Resize(w.compact.MinSize())
		}
		w.win.Show()
		w.win.RequestFocus()
	})
}

func (w *Window) Remove() {
	fyne.Do(w.win.Hide)
}

func (w *Window) ClearSelection() {
	fyne.Do(w.pane.clear)
}

func (w *Window) ShowSelection(visible bool) {
	fyne.Do(func() {
		if visible {
			w.pane.Show()
		} else {
			w.pane.Hide()
		}
	})
}

// SetStartActive highlights Start while the overlay is up.
func (w *Window) SetStartActive(active bool) {
	fyne.Do(func() {
		for _, b := range w.startBtns {
			if active {
				b.Importance = widget.HighImportance
			} else {
				b.Importance = widget.MediumImportance
			}
			b.Refresh()
		}
	})
}

func (w *Window) SetBackground(frame image.Image) {
	fyne.Do(func() { w.pane.setFrame(frame) })
}

func (w *Window) DrawRect(r image.Rectangle) {
	fyne.Do(func() { w.pane.drawRect(r) })
}

// Notify shows a desktop notification.
func (w *Window) Notify(title, body string) {
	fyne.Do(func() { w.app.SendNotification(fyne.NewNotification(title, body)) })
}

// InstallTray adds Start and Stop to the system tray when the driver has one.
// fyne appends its own Quit item.
func (w *Window) InstallTray() bool {
	desk, ok := w.app.(desktop.App)
	if !ok {
		w.log.Info().Msg("no system tray on this driver")
		return false
	}
	desk.SetSystemTrayIcon(trayIcon)
	desk.SetSystemTrayMenu(fyne.NewMenu(appTitle,
		fyne.NewMenuItem("Start", func() { call(w.cb.OnStart) }),
		fyne.NewMenuItem("Stop", func() { call(w.cb.OnStop) }),
	))
	return true
}

func (w *Window) quit() {
	if w.cb.OnQuit != nil {
		w.cb.OnQuit()
		return
	}
	w.app.Quit()
}

func call(f func()) {
	if f != nil {
		f()
	}
}
