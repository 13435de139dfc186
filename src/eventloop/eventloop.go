package eventloop

import (
	"context"
	"image"
	"log"
	"time"

	"manga-screen-ocr/src/config"
	"manga-screen-ocr/src/preprocess"
)

// Capturer is the overlay slice the loop drives. TriggerCapture delivers the
// image back through the loop's SubmitImage.
type Capturer interface {
	TriggerCapture() error
}

// Submitter is the worker-pool slice the loop submits preprocessed images to.
type Submitter interface {
	Submit(ctx context.Context, img image.Image, cb func(text string, err error)) bool
	Close()
}

// Sinks receive loop output. All funcs are optional.
type Sinks struct {
	WriteClipboard func(text string) error
	Notify         func(message string)
	SetTooltip     func(text string)
	PlayMacro      func() bool
}

// Loop is the single-goroutine coordinator: capture triggers, captured
// images, and recognition results all funnel through Run's select so state
// (busy flag, preprocess mode) is mutated from exactly one goroutine.
type Loop struct {
	capturer Capturer
	pool     Submitter
	sinks    Sinks

	busy           bool
	mode           preprocess.Mode
	macroEnabled   bool
	defaultTooltip string
	deadline       time.Duration

	triggers chan struct{}
	captures chan image.Image
	modeCh   chan preprocess.Mode
	macroCh  chan bool
	results  chan result
}

type result struct {
	text   string
	err    error
	cancel context.CancelFunc
}

// New creates an event loop. If cfg is nil or cfg.OCRDeadlineSec <= 0, a 20s
// recognition deadline is used.
func New(cfg *config.Config, capturer Capturer, pool Submitter, sinks Sinks) *Loop {
	deadlineSec := 20
	if cfg != nil && cfg.OCRDeadlineSec > 0 {
		deadlineSec = cfg.OCRDeadlineSec
	}
	mode := preprocess.ModeNone
	if cfg != nil {
		mode = preprocess.ParseMode(cfg.PreprocessMode)
	}

	return &Loop{
		capturer:       capturer,
		pool:           pool,
		sinks:          sinks,
		mode:           mode,
		macroEnabled:   cfg != nil && cfg.MacroEnabled,
		defaultTooltip: "Manga Screen OCR",
		deadline:       time.Duration(deadlineSec) * time.Second,
		triggers:       make(chan struct{}, 4),
		captures:       make(chan image.Image, 1),
		modeCh:         make(chan preprocess.Mode, 1),
		macroCh:        make(chan bool, 1),
		results:        make(chan result, 1),
	}
}

// SetDefaultTooltip optionally sets the tray tooltip base text.
func (l *Loop) SetDefaultTooltip(tt string) { l.defaultTooltip = tt }

// RequestCapture posts a capture trigger into the loop. Safe from any
// goroutine; extra triggers beyond the small buffer are dropped.
func (l *Loop) RequestCapture() {
	select {
	case l.triggers <- struct{}{}:
	default:
	}
}

// SubmitImage hands a captured image to the loop. Wire this as the overlay's
// capture callback.
func (l *Loop) SubmitImage(img image.Image) {
	select {
	case l.captures <- img:
	default:
		log.Printf("EventLoop: dropping capture, previous image still queued")
	}
}

// SetPreprocessMode changes the preprocessing mode. Safe from any goroutine.
func (l *Loop) SetPreprocessMode(mode preprocess.Mode) {
	select {
	case l.modeCh <- mode:
	default:
	}
}

// SetMacroEnabled toggles post-recognition macro playback.
func (l *Loop) SetMacroEnabled(enabled bool) {
	select {
	case l.macroCh <- enabled:
	default:
	}
}

// Deadline returns the configured recognition deadline.
func (l *Loop) Deadline() time.Duration { return l.deadline }

// Run processes loop events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()
	l.setTooltip(l.defaultTooltip)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.triggers:
			l.handleTrigger()
		case img := <-l.captures:
			l.handleImage(ctx, img)
		case mode := <-l.modeCh:
			log.Printf("EventLoop: preprocessing mode set to %s", mode)
			l.mode = mode
		case enabled := <-l.macroCh:
			log.Printf("EventLoop: macro playback enabled=%v", enabled)
			l.macroEnabled = enabled
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

func (l *Loop) handleTrigger() {
	if l.busy {
		log.Printf("EventLoop: busy, capture trigger dropped")
		l.notify("Busy, please retry")
		return
	}
	// TriggerCapture hides the overlay, settles, grabs, and calls back into
	// SubmitImage. The buffered captures channel absorbs the inline callback.
	if err := l.capturer.TriggerCapture(); err != nil {
		log.Printf("EventLoop: capture failed: %v", err)
		l.notify("Capture failed")
	}
}

func (l *Loop) handleImage(ctx context.Context, img image.Image) {
	if l.busy {
		log.Printf("EventLoop: busy, captured image dropped")
		return
	}

	prepared := preprocess.Apply(img, l.mode)
	prepared = preprocess.OptimizeSize(prepared)

	jobCtx, cancel := context.WithTimeout(ctx, l.deadline)
	l.setBusy(true)
	submitted := l.pool.Submit(jobCtx, prepared, func(text string, err error) {
		l.results <- result{text: text, err: err, cancel: cancel}
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		l.notify("Busy, please retry")
	}
}

func (l *Loop) handleResult(res result) {
	defer func() {
		l.setBusy(false)
		if res.cancel != nil {
			res.cancel()
		}
	}()

	if res.err != nil {
		log.Printf("EventLoop: recognition failed: %v", res.err)
		l.notify("Recognition failed")
		return
	}
	log.Printf("EventLoop: recognized %d chars", len(res.text))

	if l.sinks.WriteClipboard != nil {
		if err := l.sinks.WriteClipboard(res.text); err != nil {
			log.Printf("EventLoop: clipboard write failed: %v", err)
			l.notify("Clipboard error")
			return
		}
	}
	if res.text == "" {
		l.notify("No text found")
	} else {
		l.notify("Copied to clipboard")
	}

	if l.macroEnabled && res.text != "" && l.sinks.PlayMacro != nil {
		if !l.sinks.PlayMacro() {
			log.Printf("EventLoop: macro playback did not start")
		}
	}
}

func (l *Loop) setBusy(b bool) {
	l.busy = b
	if b {
		l.setTooltip("Manga Screen OCR: processing...")
	} else {
		l.setTooltip(l.defaultTooltip)
	}
}

func (l *Loop) setTooltip(text string) {
	if l.sinks.SetTooltip != nil {
		l.sinks.SetTooltip(text)
	}
}

func (l *Loop) notify(message string) {
	if l.sinks.Notify != nil {
		l.sinks.Notify(message)
	}
}
