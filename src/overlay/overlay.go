package overlay

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"manga-screen-ocr/src/screenshot"
)

const (
	// BorderWidth is the visible frame around the capture interior. Captured
	// pixels exclude it on all four sides.
	BorderWidth = 2
	// ResizeMargin is the hit-test band along edges and corners.
	ResizeMargin = 8
	// MinSize is the smallest width or height the region may reach.
	MinSize = 35
	// SettleDelay gives the compositor time to redraw after the overlay hides
	// and before pixels are grabbed.
	SettleDelay = 50 * time.Millisecond
)

// ResizeEdge identifies which edge or corner a resize gesture grips.
type ResizeEdge int

const (
	EdgeNone ResizeEdge = iota
	EdgeTop
	EdgeBottom
	EdgeLeft
	EdgeRight
	EdgeTopLeft
	EdgeTopRight
	EdgeBottomLeft
	EdgeBottomRight
)

func (e ResizeEdge) String() string {
	switch e {
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	case EdgeTopLeft:
		return "top-left"
	case EdgeTopRight:
		return "top-right"
	case EdgeBottomLeft:
		return "bottom-left"
	case EdgeBottomRight:
		return "bottom-right"
	default:
		return "none"
	}
}

// Cursor is a shape hint for the window surface while hovering.
type Cursor int

const (
	CursorArrow Cursor = iota
	CursorSizeVertical
	CursorSizeHorizontal
	CursorSizeDiagonalNWSE
	CursorSizeDiagonalNESW
)

// CursorFor maps a resize edge to the cursor the surface should show.
func CursorFor(edge ResizeEdge) Cursor {
	switch edge {
	case EdgeTop, EdgeBottom:
		return CursorSizeVertical
	case EdgeLeft, EdgeRight:
		return CursorSizeHorizontal
	case EdgeTopLeft, EdgeBottomRight:
		return CursorSizeDiagonalNWSE
	case EdgeTopRight, EdgeBottomLeft:
		return CursorSizeDiagonalNESW
	default:
		return CursorArrow
	}
}

// Mode is the current interaction state.
type Mode int

const (
	Idle Mode = iota
	Dragging
	Resizing
)

func (m Mode) String() string {
	switch m {
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	default:
		return "idle"
	}
}

// Surface is the window the overlay drives. Implementations own the actual
// toolkit window; the overlay owns geometry and interaction state.
type Surface interface {
	Hide()
	Show()
	ApplyGeometry(screenshot.Region)
}

// Callbacks fire on overlay events. OnCapture runs on the goroutine that
// called TriggerCapture; hosts marshal UI work themselves.
type Callbacks struct {
	OnGeometryChanged func(screenshot.Region)
	OnCapture         func(image.Image)
}

// Overlay is the capture-region state machine: a draggable, resizable
// rectangle in virtual-screen coordinates plus an armed flag gating capture.
// All pointer coordinates are virtual-screen (global) pixels.
type Overlay struct {
	surface Surface

	mu         sync.Mutex
	region     screenshot.Region
	mode       Mode
	edge       ResizeEdge
	dragOffX   int
	dragOffY   int
	beginReg   screenshot.Region
	armed      bool
	callbacks  Callbacks

	grab     func(screenshot.Region) (image.Image, error)
	displays func() []image.Rectangle
	settle   time.Duration
}

// New creates an overlay at the default geometry, armed.
func New(surface Surface) *Overlay {
	o := &Overlay{
		surface: surface,
		region:  screenshot.Region{X: 100, Y: 100, Width: 300, Height: 50},
		armed:   true,
		grab: func(r screenshot.Region) (image.Image, error) {
			return screenshot.CaptureRegion(r)
		},
		displays: screenshot.Displays,
		settle:   SettleDelay,
	}
	if surface != nil {
		surface.ApplyGeometry(o.region)
	}
	return o
}

// SetCallbacks installs event callbacks.
func (o *Overlay) SetCallbacks(cb Callbacks) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = cb
}

// Region returns the current capture region.
func (o *Overlay) Region() screenshot.Region {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.region
}

// InteractionMode returns the current interaction mode.
func (o *Overlay) InteractionMode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Armed reports whether capture triggers are honored.
func (o *Overlay) Armed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.armed
}

// ToggleArmed flips the armed flag and returns the new value. No geometry
// effect.
func (o *Overlay) ToggleArmed() bool {
	o.mu.Lock()
	o.armed = !o.armed
	armed := o.armed
	o.mu.Unlock()
	if armed {
		log.Printf("Overlay: capture armed")
	} else {
		log.Printf("Overlay: capture paused")
	}
	return armed
}

// classifyEdge hit-tests a window-local point against the resize margins.
// Corners win over single edges.
func classifyEdge(x, y, w, h int) ResizeEdge {
	m := ResizeMargin
	switch {
	case x < m && y < m:
		return EdgeTopLeft
	case x >= w-m && y < m:
		return EdgeTopRight
	case x < m && y >= h-m:
		return EdgeBottomLeft
	case x >= w-m && y >= h-m:
		return EdgeBottomRight
	case x < m:
		return EdgeLeft
	case x >= w-m:
		return EdgeRight
	case y < m:
		return EdgeTop
	case y >= h-m:
		return EdgeBottom
	default:
		return EdgeNone
	}
}

// CursorHint returns the cursor shape for a hover at the given point. It does
// not change interaction state.
func (o *Overlay) CursorHint(px, py int) Cursor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return CursorFor(classifyEdge(px-o.region.X, py-o.region.Y, o.region.Width, o.region.Height))
}

// BeginInteraction classifies a pointer press: a hit within the resize margin
// of an edge or corner enters Resizing; anywhere else in the rectangle enters
// Dragging with the press offset from the origin recorded.
func (o *Overlay) BeginInteraction(px, py int) Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.beginReg = o.region

	edge := classifyEdge(px-o.region.X, py-o.region.Y, o.region.Width, o.region.Height)
	if edge != EdgeNone {
		o.mode = Resizing
		o.edge = edge
	} else {
		o.mode = Dragging
		o.dragOffX = px - o.region.X
		o.dragOffY = py - o.region.Y
	}
	return o.mode
}

// UpdateInteraction advances a drag or resize to the given pointer position.
//
// Resizing is incremental: each call works from the current geometry, not the
// geometry at press time. The gripped edge's dimension becomes the pointer's
// offset from the current origin; moving the top or left edge shifts the
// origin by the same delta. Each axis clamps to MinSize independently, so
// pinning one axis never blocks the other.
func (o *Overlay) UpdateInteraction(px, py int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.mode {
	case Dragging:
		o.region.X = px - o.dragOffX
		o.region.Y = py - o.dragOffY
	case Resizing:
		x, y := o.region.X, o.region.Y
		w, h := o.region.Width, o.region.Height
		dx := px - x
		dy := py - y

		switch o.edge {
		case EdgeRight, EdgeTopRight, EdgeBottomRight:
			w = max(MinSize, dx)
		}
		switch o.edge {
		case EdgeBottom, EdgeBottomLeft, EdgeBottomRight:
			h = max(MinSize, dy)
		}
		switch o.edge {
		case EdgeLeft, EdgeTopLeft, EdgeBottomLeft:
			if nw := w - dx; nw >= MinSize {
				w = nw
				x += dx
			} else {
				w = MinSize
			}
		}
		switch o.edge {
		case EdgeTop, EdgeTopLeft, EdgeTopRight:
			if nh := h - dy; nh >= MinSize {
				h = nh
				y += dy
			} else {
				h = MinSize
			}
		}
		o.region = screenshot.Region{X: x, Y: y, Width: w, Height: h}
	default:
		return
	}
	if o.surface != nil {
		o.surface.ApplyGeometry(o.region)
	}
}

// EndInteraction returns to Idle and reports the final geometry if it changed
// during the interaction.
func (o *Overlay) EndInteraction() {
	o.mu.Lock()
	changed := o.mode != Idle && o.region != o.beginReg
	region := o.region
	notify := o.callbacks.OnGeometryChanged
	o.mode = Idle
	o.edge = EdgeNone
	o.mu.Unlock()

	if changed && notify != nil {
		notify(region)
	}
}

// TriggerCapture grabs the pixels strictly inside the border at the current
// geometry. A no-op while paused. The overlay hides, waits for the compositor
// to settle, grabs, re-shows, then delivers the image through OnCapture.
func (o *Overlay) TriggerCapture() error {
	o.mu.Lock()
	if !o.armed {
		o.mu.Unlock()
		log.Printf("Overlay: capture paused, trigger ignored")
		return nil
	}
	region := o.region
	grab := o.grab
	settle := o.settle
	deliver := o.callbacks.OnCapture
	o.mu.Unlock()

	interior := screenshot.Region{
		X:      region.X + BorderWidth,
		Y:      region.Y + BorderWidth,
		Width:  region.Width - 2*BorderWidth,
		Height: region.Height - 2*BorderWidth,
	}
	if interior.Width <= 0 || interior.Height <= 0 {
		return fmt.Errorf("capture region too small: %dx%d", region.Width, region.Height)
	}

	if o.surface != nil {
		o.surface.Hide()
		defer o.surface.Show()
	}
	time.Sleep(settle)

	img, err := grab(interior)
	if err != nil {
		return fmt.Errorf("failed to capture region: %w", err)
	}
	log.Printf("Overlay: captured %dx%d at (%d,%d)", interior.Width, interior.Height, interior.X, interior.Y)
	if deliver != nil {
		deliver(img)
	}
	return nil
}

// SerializeGeometry renders the region as a compact "WxH+X+Y" string for the
// settings store.
func (o *Overlay) SerializeGeometry() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("%dx%d+%d+%d", o.region.Width, o.region.Height, o.region.X, o.region.Y)
}

// RestoreGeometry parses a "WxH+X+Y" string and applies it if the rectangle
// still intersects at least one display. Off-screen rectangles (a monitor was
// removed since the geometry was saved) are rejected and the current geometry
// kept.
func (o *Overlay) RestoreGeometry(s string) error {
	var w, h, x, y int
	if n, err := fmt.Sscanf(s, "%dx%d+%d+%d", &w, &h, &x, &y); n != 4 || err != nil {
		return fmt.Errorf("invalid geometry string %q", s)
	}
	w = max(w, MinSize)
	h = max(h, MinSize)

	rect := image.Rect(x, y, x+w, y+h)
	visible := false
	for _, d := range o.displays() {
		if rect.Overlaps(d) {
			visible = true
			break
		}
	}
	if !visible {
		log.Printf("Overlay: saved geometry %q is off-screen, keeping current", s)
		return fmt.Errorf("geometry %q does not intersect any display", s)
	}

	o.mu.Lock()
	o.region = screenshot.Region{X: x, Y: y, Width: w, Height: h}
	region := o.region
	o.mu.Unlock()
	if o.surface != nil {
		o.surface.ApplyGeometry(region)
	}
	log.Printf("Overlay: restored geometry %dx%d+%d+%d", w, h, x, y)
	return nil
}
