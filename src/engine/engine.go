package engine

import (
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"manga-screen-ocr/src/preprocess"
)

// State describes one engine's lifecycle position.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// AccelState is the capability-query result for hardware acceleration,
// probed once per load and cached on the engine.
type AccelState int

const (
	AccelUnavailable AccelState = iota
	AccelIdle                   // runtime present but unused
	AccelActive
)

// ErrNotLoaded is returned by Infer when no model is resident.
var ErrNotLoaded = errors.New("recognition model not loaded")

// ErrOutOfMemory marks an inference failure the caller may retry with a
// smaller capture region.
var ErrOutOfMemory = errors.New("inference ran out of memory")

// FailureKind classifies load failures for user-facing remediation text.
// These are hints, not behaviorally distinct states.
type FailureKind int

const (
	FailureRuntime FailureKind = iota
	FailureBackendMissing
	FailureOutOfMemory
	FailureNativeLibrary
)

// LoadError is the stored Failed-state message.
type LoadError struct {
	Kind    FailureKind
	Message string
	Remedy  string
}

func (e *LoadError) Error() string {
	if e.Remedy == "" {
		return e.Message
	}
	return e.Message + " (" + e.Remedy + ")"
}

// backend is the per-variant contract: a heavy model resource with a
// synchronous recognize call. Implementations own their thread-safety for
// recognize; load/release are serialized by the engine harness.
type backend interface {
	load() (AccelState, error)
	recognize(img *image.NRGBA) (string, error)
	release()
}

// Engine wraps one backend with the shared lifecycle: async load with
// collapsed concurrent loads, advisory status flags, a completion event for
// waiters, and explicit unload.
type Engine struct {
	name string
	b    backend

	// loadMu is the load critical section: at most one goroutine runs the
	// backend load or release at a time.
	loadMu sync.Mutex

	// stateMu guards loadErr, accel and the completion channel. Distinct
	// from loadMu so status reads never contend with a load in flight.
	stateMu    sync.Mutex
	loadErr    *LoadError
	accel      AccelState
	done       chan struct{}
	doneClosed bool

	// Advisory flags. Lock-free reads may be slightly stale under race,
	// which is acceptable: they are status, not correctness-critical.
	loaded  atomic.Bool
	loading atomic.Bool
}

func newEngine(name string, b backend) *Engine {
	return &Engine{name: name, b: b, done: make(chan struct{})}
}

// Name returns the engine's variant identifier.
func (e *Engine) Name() string { return e.name }

// IsLoaded reports whether the model is resident. Advisory.
func (e *Engine) IsLoaded() bool { return e.loaded.Load() }

// IsLoading reports whether a load is in flight. Advisory.
func (e *Engine) IsLoading() bool { return e.loading.Load() }

// State derives the lifecycle state from the cached flags.
func (e *Engine) State() State {
	switch {
	case e.loaded.Load():
		return StateLoaded
	case e.loading.Load():
		return StateLoading
	case e.LoadError() != nil:
		return StateFailed
	default:
		return StateUnloaded
	}
}

// LoadError returns the stored failure from the last load attempt, nil when
// none.
func (e *Engine) LoadError() *LoadError {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.loadErr
}

// Accelerated returns the accelerator capability probed during the last load.
func (e *Engine) Accelerated() AccelState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.accel
}

func (e *Engine) doneChan() chan struct{} {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.done
}

// LoadAsync loads the model on a background goroutine. Idempotent and
// non-blocking: when the engine is already loaded the callback fires with the
// current outcome; when a load is in flight the callback is deferred until
// that load finishes, without re-entering the load body.
func (e *Engine) LoadAsync(onComplete func(ok bool, err error)) {
	if e.loaded.Load() {
		if onComplete != nil {
			onComplete(true, nil)
		}
		return
	}
	if e.loading.Load() {
		if onComplete != nil {
			ch := e.doneChan()
			go func() {
				<-ch
				onComplete(e.loaded.Load(), errOrNil(e.LoadError()))
			}()
		}
		return
	}
	go func() {
		e.loadSync()
		if onComplete != nil {
			onComplete(e.loaded.Load(), errOrNil(e.LoadError()))
		}
	}()
}

func errOrNil(le *LoadError) error {
	if le == nil {
		return nil
	}
	return le
}

func (e *Engine) loadSync() {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.loaded.Load() {
		return
	}

	e.loading.Store(true)
	e.stateMu.Lock()
	e.loadErr = nil
	if e.doneClosed {
		// A previous attempt already signalled; arm a fresh event.
		e.done = make(chan struct{})
		e.doneClosed = false
	}
	done := e.done
	e.stateMu.Unlock()

	log.Printf("Engine[%s]: loading model...", e.name)
	start := time.Now()
	accel, err := e.b.load()

	e.stateMu.Lock()
	if err != nil {
		e.loadErr = classifyLoad(err)
		e.accel = AccelUnavailable
	} else {
		e.accel = accel
	}
	e.stateMu.Unlock()

	e.loaded.Store(err == nil)
	e.loading.Store(false)

	e.stateMu.Lock()
	e.doneClosed = true
	e.stateMu.Unlock()
	close(done)

	if err != nil {
		log.Printf("Engine[%s]: load failed after %v: %v", e.name, time.Since(start), err)
	} else {
		log.Printf("Engine[%s]: model loaded in %v (accel=%d)", e.name, time.Since(start), accel)
	}
}

// WaitUntilLoaded blocks until the current or next load attempt completes, or
// timeout elapses (timeout <= 0 waits forever). It never triggers a load.
func (e *Engine) WaitUntilLoaded(timeout time.Duration) bool {
	if e.loaded.Load() {
		return true
	}
	ch := e.doneChan()
	if timeout <= 0 {
		<-ch
		return e.loaded.Load()
	}
	select {
	case <-ch:
	case <-time.After(timeout):
	}
	return e.loaded.Load()
}

// Infer recognizes text in the image, synchronously on the calling thread.
// The input is normalized to the fixed NRGBA layout before the backend sees
// it. An empty result is success, not an error.
func (e *Engine) Infer(img image.Image) (string, error) {
	if !e.loaded.Load() {
		if le := e.LoadError(); le != nil {
			return "", fmt.Errorf("engine %s failed to load: %w", e.name, le)
		}
		return "", ErrNotLoaded
	}

	start := time.Now()
	text, err := e.b.recognize(preprocess.Normalize(img))
	if err != nil {
		if isOOM(err) {
			return "", fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
		return "", fmt.Errorf("engine %s inference failed: %w", e.name, err)
	}
	log.Printf("Engine[%s]: inference took %v, %d characters", e.name, time.Since(start), len(text))
	return strings.TrimSpace(text), nil
}

// Unload releases the model resource and resets the engine to Unloaded,
// clearing any cached error. Safe to call repeatedly.
func (e *Engine) Unload() {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.b.release()

	e.stateMu.Lock()
	e.loadErr = nil
	e.accel = AccelUnavailable
	e.done = make(chan struct{})
	e.doneClosed = false
	e.stateMu.Unlock()

	e.loaded.Store(false)
	e.loading.Store(false)
	log.Printf("Engine[%s]: model unloaded", e.name)
}

func isOOM(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "out of memory")
}

func classifyLoad(err error) *LoadError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "out of memory"):
		return &LoadError{Kind: FailureOutOfMemory, Message: msg,
			Remedy: "close memory-hungry applications or use a smaller capture area"}
	case strings.Contains(lower, "dll") || strings.Contains(lower, "shared object") ||
		strings.Contains(lower, "shared library") || strings.Contains(lower, "library not loaded"):
		return &LoadError{Kind: FailureNativeLibrary, Message: msg,
			Remedy: "a required system library is missing; reinstall the recognition backend"}
	case strings.Contains(lower, "not installed") || strings.Contains(lower, "not configured") ||
		strings.Contains(lower, "language data") || strings.Contains(lower, "executable file not found"):
		return &LoadError{Kind: FailureBackendMissing, Message: msg,
			Remedy: "install the recognition backend and its Japanese language data"}
	default:
		return &LoadError{Kind: FailureRuntime, Message: msg}
	}
}
