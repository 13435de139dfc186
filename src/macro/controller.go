package macro

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	gohook "github.com/robotn/gohook"

	"manga-screen-ocr/src/input"
)

// State of the macro controller. Recording and Playing are mutually
// exclusive; both are entered only from Idle.
type State int

const (
	Idle State = iota
	Recording
	Playing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return "idle"
	}
}

// HookSource is the slice of the input router the controller needs. Keyboard
// and pointer availability are reported independently so a host that denies
// one hook still records the other.
type HookSource interface {
	Subscribe(buf int) (<-chan gohook.Event, func())
	KeyboardAvailable() bool
	PointerAvailable() bool
}

// Injector re-synthesizes input actions during playback.
type Injector interface {
	KeyDown(key string)
	KeyUp(key string)
	PointerDown(button string)
	PointerUp(button string)
	PointerClick(button string)
	PointerMove(x, y int)
	PointerScroll(delta int)
}

// Callbacks fire on controller transitions. All run off the interactive
// thread; hosts must marshal UI work themselves.
type Callbacks struct {
	OnRecordingComplete func([]Event)
	OnPlaybackComplete  func()
	OnStateChange       func(State)
}

const defaultKillKey = "f12"

// Controller records and replays timed input-event logs. Exactly one
// instance per process is expected; the state machine enforces
// Recording/Playing exclusivity.
type Controller struct {
	src    HookSource
	inject Injector

	mu        sync.Mutex
	state     State
	events    []Event
	startTime time.Time
	killKey   string
	callbacks Callbacks

	recStop   chan struct{}
	recCancel func()

	killRequested atomic.Bool
}

// NewController wires the controller to a hook source and an injector.
func NewController(src HookSource, inject Injector) *Controller {
	return &Controller{src: src, inject: inject, killKey: defaultKillKey}
}

// IsAvailable reports whether any input-hooking channel exists on this host.
// Callers should hide the macro feature entirely when false.
func (c *Controller) IsAvailable() bool {
	return c.src != nil && (c.src.KeyboardAvailable() || c.src.PointerAvailable())
}

// SetKillKey designates the key that stops recording or playback.
func (c *Controller) SetKillKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if normalized := input.NormalizeKeyName(key); normalized != "" {
		c.killKey = normalized
	}
}

// SetCallbacks installs transition callbacks.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns a copy of the recorded log.
func (c *Controller) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// LoadEvents replaces the stored log (restored from the settings store).
func (c *Controller) LoadEvents(events []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append([]Event(nil), events...)
}

func (c *Controller) setStateLocked(s State) func(State) {
	c.state = s
	return c.callbacks.OnStateChange
}

// StartRecording clears the log and begins capturing global input. Returns
// false unless Idle and at least one hook channel is available.
func (c *Controller) StartRecording() bool {
	if !c.IsAvailable() {
		log.Printf("Macro: cannot record, no input hooks available")
		return false
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		log.Printf("Macro: cannot record while %s", c.state)
		return false
	}
	c.events = nil
	c.startTime = time.Now()
	c.recStop = make(chan struct{})
	events, cancel := c.src.Subscribe(256)
	c.recCancel = cancel
	stop := c.recStop
	notify := c.setStateLocked(Recording)
	c.mu.Unlock()

	if notify != nil {
		notify(Recording)
	}
	log.Printf("Macro: recording started, kill key is %q", c.killKey)

	go c.consumeRecording(events, stop)
	return true
}

func (c *Controller) consumeRecording(events <-chan gohook.Event, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if c.handleRecordedEvent(ev) {
				// Kill key observed: implicit stop, not recorded.
				c.StopRecording()
				return
			}
		}
	}
}

// handleRecordedEvent appends one observed event; returns true for the kill
// key press.
func (c *Controller) handleRecordedEvent(ev gohook.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return false
	}
	ts := time.Since(c.startTime).Seconds()

	switch ev.Kind {
	case gohook.KeyDown:
		name := input.KeyName(ev.Rawcode)
		if name == "" {
			return false // unmappable keys cannot be replayed, skip
		}
		if name == c.killKey {
			return true
		}
		c.events = append(c.events, Event{Kind: KeyDown, Timestamp: ts, Key: name})
	case gohook.KeyUp:
		name := input.KeyName(ev.Rawcode)
		if name == "" || name == c.killKey {
			return false
		}
		c.events = append(c.events, Event{Kind: KeyUp, Timestamp: ts, Key: name})
	case gohook.MouseDown:
		c.events = append(c.events, Event{Kind: PointerDown, Timestamp: ts,
			Button: buttonName(ev.Button), X: int(ev.X), Y: int(ev.Y)})
	case gohook.MouseUp:
		c.events = append(c.events, Event{Kind: PointerUp, Timestamp: ts,
			Button: buttonName(ev.Button), X: int(ev.X), Y: int(ev.Y)})
	case gohook.MouseMove, gohook.MouseDrag:
		c.events = append(c.events, Event{Kind: PointerMove, Timestamp: ts,
			X: int(ev.X), Y: int(ev.Y)})
	case gohook.MouseWheel:
		c.events = append(c.events, Event{Kind: PointerScroll, Timestamp: ts,
			Delta: int(ev.Rotation)})
	}
	return false
}

func buttonName(button uint16) string {
	switch button {
	case 2:
		return "right"
	case 3:
		return "center"
	default:
		return "left"
	}
}

// StopRecording uninstalls hooks and returns the captured log. A no-op
// (returning the existing log) unless currently Recording.
func (c *Controller) StopRecording() []Event {
	c.mu.Lock()
	if c.state != Recording {
		out := make([]Event, len(c.events))
		copy(out, c.events)
		c.mu.Unlock()
		return out
	}
	close(c.recStop)
	c.recCancel()
	c.recStop = nil
	c.recCancel = nil
	out := make([]Event, len(c.events))
	copy(out, c.events)
	notify := c.setStateLocked(Idle)
	complete := c.callbacks.OnRecordingComplete
	c.mu.Unlock()

	log.Printf("Macro: recording stopped, %d events captured", len(out))
	if notify != nil {
		notify(Idle)
	}
	if complete != nil {
		complete(out)
	}
	return out
}

// Play replays a log on a background worker. With a nil log the last
// recording is used. Returns false unless Idle with a non-empty log.
func (c *Controller) Play(events []Event) bool {
	if c.inject == nil {
		log.Printf("Macro: cannot play, no injector available")
		return false
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		log.Printf("Macro: cannot play while %s", c.state)
		return false
	}
	if events == nil {
		events = c.events
	}
	if len(events) == 0 {
		c.mu.Unlock()
		log.Printf("Macro: no events to play")
		return false
	}
	toPlay := make([]Event, len(events))
	copy(toPlay, events)
	c.killRequested.Store(false)
	notify := c.setStateLocked(Playing)
	c.mu.Unlock()

	if notify != nil {
		notify(Playing)
	}

	// Watch for the kill key while playing. Pointer-only hosts simply have
	// no kill switch; Stop() still works.
	var killCancel func()
	if c.src != nil && c.src.KeyboardAvailable() {
		killEvents, cancel := c.src.Subscribe(64)
		killCancel = cancel
		go c.watchKillKey(killEvents)
	}

	go c.playbackWorker(toPlay, killCancel)
	return true
}

func (c *Controller) watchKillKey(events <-chan gohook.Event) {
	for ev := range events {
		if ev.Kind != gohook.KeyDown {
			continue
		}
		c.mu.Lock()
		kill := c.killKey
		c.mu.Unlock()
		if input.KeyName(ev.Rawcode) == kill {
			log.Printf("Macro: kill key pressed, stopping playback")
			c.killRequested.Store(true)
			return
		}
	}
}

func (c *Controller) playbackWorker(events []Event, killCancel func()) {
	log.Printf("Macro: playing %d events", len(events))
	prev := 0.0
	for _, ev := range events {
		if c.killRequested.Load() {
			log.Printf("Macro: playback aborted")
			break
		}
		if delay := ev.Timestamp - prev; delay > 0 {
			time.Sleep(time.Duration(delay * float64(time.Second)))
		}
		prev = ev.Timestamp
		if c.killRequested.Load() {
			log.Printf("Macro: playback aborted")
			break
		}
		c.execute(ev)
	}

	if killCancel != nil {
		killCancel()
	}

	c.mu.Lock()
	notify := c.setStateLocked(Idle)
	complete := c.callbacks.OnPlaybackComplete
	c.mu.Unlock()

	log.Printf("Macro: playback complete")
	if notify != nil {
		notify(Idle)
	}
	if complete != nil {
		complete()
	}
}

func (c *Controller) execute(ev Event) {
	switch ev.Kind {
	case KeyDown:
		c.inject.KeyDown(ev.Key)
	case KeyUp:
		c.inject.KeyUp(ev.Key)
	case PointerDown:
		c.inject.PointerDown(ev.Button)
	case PointerUp:
		c.inject.PointerUp(ev.Button)
	case PointerClick:
		c.inject.PointerClick(ev.Button)
	case PointerMove:
		c.inject.PointerMove(ev.X, ev.Y)
	case PointerScroll:
		c.inject.PointerScroll(ev.Delta)
	}
}

// Stop ends whatever is in progress: recording stops synchronously, playback
// is cancelled cooperatively without blocking for the worker.
func (c *Controller) Stop() {
	switch c.State() {
	case Recording:
		c.StopRecording()
	case Playing:
		c.killRequested.Store(true)
	}
}
