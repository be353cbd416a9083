package gui

import (
	"image"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"select2speak/src/gesture"
)

func TestScaleToFrame(t *testing.T) {
	tests := []struct {
		name  string
		pos   fyne.Position
		pane  fyne.Size
		frame image.Point
		want  image.Point
	}{
		{"identity", fyne.NewPos(10, 20), fyne.NewSize(100, 100), image.Pt(100, 100), image.Pt(10, 20)},
		{"hidpi frame", fyne.NewPos(10, 20), fyne.NewSize(960, 540), image.Pt(1920, 1080), image.Pt(20, 40)},
		{"no frame", fyne.NewPos(7.9, 3.2), fyne.NewSize(100, 100), image.Point{}, image.Pt(7, 3)},
		{"zero pane", fyne.NewPos(5, 5), fyne.Size{}, image.Pt(100, 100), image.Pt(5, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scaleToFrame(tt.pos, tt.pane, tt.frame); got != tt.want {
				t.Errorf("scaleToFrame = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScaleToPaneInverts(t *testing.T) {
	pane := fyne.NewSize(960, 540)
	frame := image.Pt(1920, 1080)
	pos, size := scaleToPane(image.Rect(100, 40, 20, 200), pane, frame)
	if pos != fyne.NewPos(10, 20) || size != fyne.NewSize(40, 80) {
		t.Errorf("scaleToPane = %v %v", pos, size)
	}
}

func TestPaneEmitsGesture(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	var got []gesture.Event
	p := newSelectionPane(func(ev gesture.Event) { got = append(got, ev) })
	p.Resize(fyne.NewSize(100, 100))
	p.setFrame(image.NewRGBA(image.Rect(0, 0, 200, 200)))

	down := &desktop.MouseEvent{Button: desktop.MouseButtonPrimary}
	down.Position = fyne.NewPos(5, 5)
	p.MouseDown(down)

	drag := &fyne.DragEvent{}
	drag.Position = fyne.NewPos(25, 40)
	p.Dragged(drag)

	up := &desktop.MouseEvent{Button: desktop.MouseButtonPrimary}
	up.Position = fyne.NewPos(25, 40)
	p.MouseUp(up)
	p.DragEnd()

	want := []gesture.Event{
		{Action: gesture.Down, X: 10, Y: 10},
		{Action: gesture.Move, X: 50, Y: 80},
		{Action: gesture.Up, X: 50, Y: 80},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSecondaryButtonIgnored(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	n := 0
	p := newSelectionPane(func(gesture.Event) { n++ })
	ev := &desktop.MouseEvent{Button: desktop.MouseButtonSecondary}
	p.MouseDown(ev)
	if n != 0 {
		t.Errorf("secondary button produced %d events", n)
	}
}

func TestDrawRectOutline(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	p := newSelectionPane(nil)
	p.Resize(fyne.NewSize(100, 100))
	p.setFrame(image.NewRGBA(image.Rect(0, 0, 200, 200)))
	p.drawRect(image.Rect(20, 20, 120, 60))
	if !p.outline.Visible() {
		t.Fatal("outline hidden after drawRect")
	}
	if p.outline.Position() != fyne.NewPos(10, 10) || p.outline.Size() != fyne.NewSize(50, 20) {
		t.Errorf("outline at %v size %v", p.outline.Position(), p.outline.Size())
	}
	p.clear()
	if p.outline.Visible() {
		t.Error("outline visible after clear")
	}
}
