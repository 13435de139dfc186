package worker

import (
	"context"
	"image"
	"log"
	"runtime"
	"sync"
)

// InferFunc performs recognition on a captured image. The pool calls it off
// the interactive thread.
type InferFunc func(img image.Image) (string, error)

// ResultCallback is invoked on recognition completion from a worker
// goroutine. The event loop should pass a closure that posts back into the
// loop safely.
type ResultCallback func(text string, err error)

// Pool is a fixed-size recognition worker pool with a 1-slot input queue.
// A capture that arrives while the queue is full is dropped at Submit,
// keeping the hotkey responsive under strict back-pressure.
type Pool struct {
	infer InferFunc
	jobs  chan job
	wg    sync.WaitGroup
}

type job struct {
	ctx context.Context
	img image.Image
	cb  ResultCallback
}

// New creates a worker pool around an inference function. Size defaults to
// NumCPU when size<=0. Queue is 1 slot.
func New(size int, infer InferFunc) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{infer: infer, jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				b := j.img.Bounds()
				log.Printf("Worker: starting recognition for %dx%d image", b.Dx(), b.Dy())
				text, err := p.inferWithContext(j.ctx, j.img)
				log.Printf("Worker: recognition completed, text length=%d, err=%v", len(text), err)
				j.cb(text, err)
			}
		}()
	}
}

// Submit enqueues a recognition job if the single-slot queue is free.
// Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, img image.Image, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, img: img, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// inferWithContext wraps the inference call with a deadline-aware path.
func (p *Pool) inferWithContext(ctx context.Context, img image.Image) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		return p.infer(img)
	}
	// Run in a sub-goroutine and respect ctx.Done(). The underlying
	// inference keeps running in the background on timeout; the result is
	// discarded.
	resCh := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := p.infer(img)
		resCh <- struct {
			text string
			err  error
		}{text, err}
	}()
	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
