package input

import (
	"log"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Router owns the process-wide gohook event stream and fans it out to
// subscribers. Hook callbacks never touch application state directly: they
// only enqueue onto per-subscriber channels, and each subscriber drains its
// own channel on a goroutine of its choosing.
type Router struct {
	mu        sync.Mutex
	subs      map[int]chan gohook.Event
	nextID    int
	started   bool
	keyboard  bool
	pointer   bool
	startHook func() chan gohook.Event
}

var (
	defaultRouter *Router
	defaultOnce   sync.Once
)

// Default returns the process-wide router backed by gohook.
func Default() *Router {
	defaultOnce.Do(func() {
		defaultRouter = &Router{
			subs:      make(map[int]chan gohook.Event),
			startHook: gohook.Start,
		}
	})
	return defaultRouter
}

// Start installs the global hook and begins fan-out. Idempotent; returns
// whether any input channel is hooked. A failed hook registration is logged
// and leaves the router permanently unavailable rather than erroring on use.
//
// gohook installs one combined hook with no per-channel failure signal, so on
// this backend the keyboard and pointer flags always move together: both set
// on a successful Start, both cleared if the hook stream ends.
func (r *Router) Start() bool {
	r.mu.Lock()
	if r.started {
		ok := r.keyboard || r.pointer
		r.mu.Unlock()
		return ok
	}
	r.started = true
	start := r.startHook
	r.mu.Unlock()

	evChan := start()
	if evChan == nil {
		log.Printf("Input: hook registration failed, input features disabled")
		return false
	}

	r.mu.Lock()
	r.keyboard = true
	r.pointer = true
	r.mu.Unlock()

	go r.consume(evChan)
	return true
}

func (r *Router) consume(evChan chan gohook.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Input: PANIC in hook consumer: %v", rec)
		}
	}()
	for ev := range evChan {
		r.dispatch(ev)
	}
	log.Printf("Input: hook event channel closed")
	r.mu.Lock()
	r.keyboard = false
	r.pointer = false
	r.mu.Unlock()
}

func (r *Router) dispatch(ev gohook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		// Drop rather than block: a slow subscriber must not stall the hook.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new event sink. Cancel removes the subscriber and
// closes its channel so draining goroutines terminate; extra calls are no-ops.
func (r *Router) Subscribe(buf int) (<-chan gohook.Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan gohook.Event, buf)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// dispatch sends under the same lock, so closing here cannot race a send.
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// KeyboardAvailable reports whether keyboard hooking is active.
func (r *Router) KeyboardAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keyboard
}

// PointerAvailable reports whether pointer hooking is active.
func (r *Router) PointerAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pointer
}
