package overlay

import (
	"image"
	"sync"
	"testing"
	"time"

	"manga-screen-ocr/src/screenshot"
)

type fakeSurface struct {
	mu      sync.Mutex
	hidden  bool
	hides   int
	shows   int
	applied []screenshot.Region
}

func (f *fakeSurface) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden = true
	f.hides++
}

func (f *fakeSurface) Show() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden = false
	f.shows++
}

func (f *fakeSurface) ApplyGeometry(r screenshot.Region) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, r)
}

func newTestOverlay() (*Overlay, *fakeSurface) {
	surface := &fakeSurface{}
	o := New(surface)
	o.settle = time.Millisecond
	o.displays = func() []image.Rectangle {
		return []image.Rectangle{image.Rect(0, 0, 1920, 1080)}
	}
	return o, surface
}

func TestDragTracksPointerMinusOffset(t *testing.T) {
	o, _ := newTestOverlay()
	// Default region is 300x50 at (100,100); press in the interior.
	if mode := o.BeginInteraction(150, 120); mode != Dragging {
		t.Fatalf("mode: got %v, want Dragging", mode)
	}
	o.UpdateInteraction(400, 300)
	got := o.Region()
	want := screenshot.Region{X: 350, Y: 280, Width: 300, Height: 50}
	if got != want {
		t.Errorf("region: got %+v, want %+v", got, want)
	}
}

func TestEdgeClassification(t *testing.T) {
	o, _ := newTestOverlay()
	// Region 300x50 at (100,100). Points are virtual-screen coordinates.
	cases := []struct {
		name string
		x, y int
		want ResizeEdge
	}{
		{"interior", 250, 125, EdgeNone},
		{"left", 103, 125, EdgeLeft},
		{"right", 397, 125, EdgeRight},
		{"top", 250, 103, EdgeTop},
		{"bottom", 250, 147, EdgeBottom},
		// Bands are 8px on every side: left covers local x 0..7, right
		// covers local x 292..299 for a 300-wide region.
		{"left band outer boundary", 107, 125, EdgeLeft},
		{"interior beside left band", 108, 125, EdgeNone},
		{"right band inner boundary", 392, 125, EdgeRight},
		{"interior beside right band", 391, 125, EdgeNone},
		{"bottom band inner boundary", 250, 142, EdgeBottom},
		{"interior above bottom band", 250, 141, EdgeNone},
		{"top-left corner wins", 103, 103, EdgeTopLeft},
		{"top-right corner wins", 397, 103, EdgeTopRight},
		{"bottom-left corner wins", 103, 147, EdgeBottomLeft},
		{"bottom-right corner wins", 397, 147, EdgeBottomRight},
	}
	for _, tc := range cases {
		got := classifyEdge(tc.x-100, tc.y-100, 300, 50)
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
		wantMode := Resizing
		if tc.want == EdgeNone {
			wantMode = Dragging
		}
		if mode := o.BeginInteraction(tc.x, tc.y); mode != wantMode {
			t.Errorf("%s: mode got %v, want %v", tc.name, mode, wantMode)
		}
		o.EndInteraction()
	}
}

func TestResizeIsIncrementalFromCurrentGeometry(t *testing.T) {
	o, _ := newTestOverlay()
	o.BeginInteraction(398, 125) // right edge of 300x50@(100,100)

	o.UpdateInteraction(500, 125)
	if got := o.Region(); got.Width != 400 {
		t.Fatalf("width after first move: got %d, want 400", got.Width)
	}
	// Second move computes from the new geometry, not the press-time one.
	o.UpdateInteraction(300, 125)
	if got := o.Region(); got.Width != 200 {
		t.Errorf("width after second move: got %d, want 200", got.Width)
	}
}

func TestResizeLeftEdgeShiftsOrigin(t *testing.T) {
	o, _ := newTestOverlay()
	o.BeginInteraction(102, 125) // left edge

	o.UpdateInteraction(50, 125)
	got := o.Region()
	want := screenshot.Region{X: 50, Y: 100, Width: 350, Height: 50}
	if got != want {
		t.Errorf("region: got %+v, want %+v", got, want)
	}
}

func TestResizeClampsAtMinimumWithoutMovingOrigin(t *testing.T) {
	o, _ := newTestOverlay()
	o.BeginInteraction(250, 147) // bottom edge, height 50

	// Pull far above the top; height pins at MinSize, origin stays put.
	o.UpdateInteraction(250, 50)
	got := o.Region()
	if got.Height != MinSize {
		t.Errorf("height: got %d, want %d", got.Height, MinSize)
	}
	if got.Y != 100 {
		t.Errorf("origin y moved: got %d, want 100", got.Y)
	}
	if got.Width != 300 {
		t.Errorf("width changed during vertical resize: got %d", got.Width)
	}
}

func TestCornerResizePinsOneAxisIndependently(t *testing.T) {
	o, _ := newTestOverlay()
	o.BeginInteraction(397, 147) // bottom-right corner

	// Collapse height below minimum while growing width.
	o.UpdateInteraction(600, 90)
	got := o.Region()
	if got.Width != 500 {
		t.Errorf("width: got %d, want 500", got.Width)
	}
	if got.Height != MinSize {
		t.Errorf("height: got %d, want %d (pinned)", got.Height, MinSize)
	}
}

func TestEndInteractionReportsGeometryChange(t *testing.T) {
	o, _ := newTestOverlay()

	var reported []screenshot.Region
	o.SetCallbacks(Callbacks{OnGeometryChanged: func(r screenshot.Region) {
		reported = append(reported, r)
	}})

	o.BeginInteraction(150, 120)
	o.UpdateInteraction(200, 170)
	o.EndInteraction()
	if len(reported) != 1 {
		t.Fatalf("geometry events: got %d, want 1", len(reported))
	}
	if reported[0] != o.Region() {
		t.Errorf("reported %+v, region %+v", reported[0], o.Region())
	}

	// Press and release with no movement reports nothing.
	o.BeginInteraction(150, 120)
	o.EndInteraction()
	if len(reported) != 1 {
		t.Errorf("geometry events after no-op interaction: got %d, want 1", len(reported))
	}
}

func TestTriggerCaptureGrabsInteriorExcludingBorder(t *testing.T) {
	o, surface := newTestOverlay()

	var grabbed []screenshot.Region
	var hiddenDuringGrab bool
	o.grab = func(r screenshot.Region) (image.Image, error) {
		grabbed = append(grabbed, r)
		surface.mu.Lock()
		hiddenDuringGrab = surface.hidden
		surface.mu.Unlock()
		return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil
	}

	var captured []image.Image
	o.SetCallbacks(Callbacks{OnCapture: func(img image.Image) {
		captured = append(captured, img)
	}})

	if err := o.TriggerCapture(); err != nil {
		t.Fatalf("TriggerCapture failed: %v", err)
	}
	if len(grabbed) != 1 {
		t.Fatalf("grabs: got %d, want 1", len(grabbed))
	}
	want := screenshot.Region{X: 102, Y: 102, Width: 296, Height: 46}
	if grabbed[0] != want {
		t.Errorf("grab rect: got %+v, want %+v", grabbed[0], want)
	}
	if !hiddenDuringGrab {
		t.Error("overlay was visible during the grab")
	}
	if surface.hides != 1 || surface.shows != 1 {
		t.Errorf("hide/show: got %d/%d, want 1/1", surface.hides, surface.shows)
	}
	if len(captured) != 1 {
		t.Errorf("captured-image events: got %d, want 1", len(captured))
	}
	if b := captured[0].Bounds(); b.Dx() != 296 || b.Dy() != 46 {
		t.Errorf("image size: got %dx%d", b.Dx(), b.Dy())
	}
}

func TestTriggerCaptureIsNoOpWhilePaused(t *testing.T) {
	o, surface := newTestOverlay()
	o.grab = func(r screenshot.Region) (image.Image, error) {
		t.Error("grab must not run while paused")
		return nil, nil
	}

	if o.ToggleArmed() {
		t.Fatal("ToggleArmed should disarm from the armed default")
	}
	if err := o.TriggerCapture(); err != nil {
		t.Fatalf("paused trigger should be a silent no-op, got %v", err)
	}
	if surface.hides != 0 {
		t.Error("overlay hid for a paused trigger")
	}

	if !o.ToggleArmed() {
		t.Error("ToggleArmed should re-arm")
	}
}

func TestSerializeRestoreRoundTrip(t *testing.T) {
	o, _ := newTestOverlay()
	o.BeginInteraction(150, 120)
	o.UpdateInteraction(400, 300)
	o.EndInteraction()

	s := o.SerializeGeometry()
	if s != "300x50+350+280" {
		t.Fatalf("serialized: got %q", s)
	}

	other, _ := newTestOverlay()
	if err := other.RestoreGeometry(s); err != nil {
		t.Fatalf("RestoreGeometry failed: %v", err)
	}
	if other.Region() != o.Region() {
		t.Errorf("round trip: got %+v, want %+v", other.Region(), o.Region())
	}
}

func TestRestoreRejectsOffScreenGeometry(t *testing.T) {
	o, _ := newTestOverlay()
	before := o.Region()

	if err := o.RestoreGeometry("300x50+5000+5000"); err == nil {
		t.Fatal("expected off-screen geometry to be rejected")
	}
	if o.Region() != before {
		t.Errorf("region changed on rejected restore: %+v", o.Region())
	}
}

func TestRestoreRejectsMalformedString(t *testing.T) {
	o, _ := newTestOverlay()
	for _, s := range []string{"", "banana", "300x50", "300x50+10"} {
		if err := o.RestoreGeometry(s); err == nil {
			t.Errorf("RestoreGeometry(%q): expected an error", s)
		}
	}
}

func TestRestoreEnforcesMinimumSize(t *testing.T) {
	o, _ := newTestOverlay()
	if err := o.RestoreGeometry("10x10+200+200"); err != nil {
		t.Fatalf("RestoreGeometry failed: %v", err)
	}
	got := o.Region()
	if got.Width != MinSize || got.Height != MinSize {
		t.Errorf("size: got %dx%d, want %dx%d", got.Width, got.Height, MinSize, MinSize)
	}
}

func TestCursorHints(t *testing.T) {
	o, _ := newTestOverlay()
	cases := []struct {
		x, y int
		want Cursor
	}{
		{250, 125, CursorArrow},
		{250, 103, CursorSizeVertical},
		{103, 125, CursorSizeHorizontal},
		{103, 103, CursorSizeDiagonalNWSE},
		{397, 103, CursorSizeDiagonalNESW},
	}
	for _, tc := range cases {
		if got := o.CursorHint(tc.x, tc.y); got != tc.want {
			t.Errorf("CursorHint(%d,%d): got %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}
}
