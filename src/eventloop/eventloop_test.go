package eventloop

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"manga-screen-ocr/src/config"
)

// fakeCapturer posts an image into the loop the way the overlay's capture
// callback does.
type fakeCapturer struct {
	loop *Loop
	img  image.Image
	err  error

	mu       sync.Mutex
	triggers int
}

func (f *fakeCapturer) TriggerCapture() error {
	f.mu.Lock()
	f.triggers++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.loop.SubmitImage(f.img)
	return nil
}

type fakePool struct {
	mu      sync.Mutex
	submits int
	text    string
	err     error
	reject  bool
}

func (f *fakePool) Submit(ctx context.Context, img image.Image, cb func(string, error)) bool {
	f.mu.Lock()
	f.submits++
	reject := f.reject
	text, err := f.text, f.err
	f.mu.Unlock()
	if reject {
		return false
	}
	go cb(text, err)
	return true
}

func (f *fakePool) Close() {}

type sinkRecorder struct {
	mu        sync.Mutex
	clipboard []string
	notices   []string
	plays     int
	clipErr   error
}

func (s *sinkRecorder) sinks() Sinks {
	return Sinks{
		WriteClipboard: func(text string) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.clipErr != nil {
				return s.clipErr
			}
			s.clipboard = append(s.clipboard, text)
			return nil
		},
		Notify: func(message string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.notices = append(s.notices, message)
		},
		PlayMacro: func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.plays++
			return true
		},
	}
}

func (s *sinkRecorder) waitNotice(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, n := range s.notices {
			if n == want {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Fatalf("notice %q never arrived (got %v)", want, s.notices)
}

func startLoop(t *testing.T, cfg *config.Config, pool *fakePool, sinks *sinkRecorder) (*Loop, *fakeCapturer) {
	t.Helper()
	capturer := &fakeCapturer{img: image.NewRGBA(image.Rect(0, 0, 40, 40))}
	l := New(cfg, capturer, pool, sinks.sinks())
	capturer.loop = l

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = l.Run(ctx) }()
	return l, capturer
}

func TestCaptureToClipboardFlow(t *testing.T) {
	pool := &fakePool{text: "吾輩は猫である"}
	sinks := &sinkRecorder{}
	l, _ := startLoop(t, nil, pool, sinks)

	l.RequestCapture()
	sinks.waitNotice(t, "Copied to clipboard")

	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if len(sinks.clipboard) != 1 || sinks.clipboard[0] != "吾輩は猫である" {
		t.Errorf("clipboard: got %v", sinks.clipboard)
	}
	if sinks.plays != 0 {
		t.Errorf("macro played without being enabled")
	}
}

func TestEmptyTextIsSuccessWithoutMacro(t *testing.T) {
	pool := &fakePool{text: ""}
	sinks := &sinkRecorder{}
	l, _ := startLoop(t, &config.Config{MacroEnabled: true}, pool, sinks)

	l.RequestCapture()
	sinks.waitNotice(t, "No text found")

	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if len(sinks.clipboard) != 1 {
		t.Errorf("empty text should still reach the clipboard, got %v", sinks.clipboard)
	}
	if sinks.plays != 0 {
		t.Errorf("macro must not play on empty text")
	}
}

func TestMacroPlaysAfterSuccessfulRecognition(t *testing.T) {
	pool := &fakePool{text: "めくれ"}
	sinks := &sinkRecorder{}
	l, _ := startLoop(t, &config.Config{MacroEnabled: true}, pool, sinks)

	l.RequestCapture()
	sinks.waitNotice(t, "Copied to clipboard")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sinks.mu.Lock()
		plays := sinks.plays
		sinks.mu.Unlock()
		if plays == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("macro never played")
}

func TestRecognitionErrorNotifies(t *testing.T) {
	pool := &fakePool{err: errors.New("engine exploded")}
	sinks := &sinkRecorder{}
	l, _ := startLoop(t, nil, pool, sinks)

	l.RequestCapture()
	sinks.waitNotice(t, "Recognition failed")

	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if len(sinks.clipboard) != 0 {
		t.Errorf("failed recognition must not touch the clipboard")
	}
}

func TestBusyPoolNotifiesAndRecovers(t *testing.T) {
	pool := &fakePool{reject: true, text: "ok"}
	sinks := &sinkRecorder{}
	l, _ := startLoop(t, nil, pool, sinks)

	l.RequestCapture()
	sinks.waitNotice(t, "Busy, please retry")

	// The loop must not be stuck busy after a rejected submit.
	pool.mu.Lock()
	pool.reject = false
	pool.mu.Unlock()
	l.RequestCapture()
	sinks.waitNotice(t, "Copied to clipboard")
}

func TestCaptureFailureNotifies(t *testing.T) {
	pool := &fakePool{}
	sinks := &sinkRecorder{}
	l, capturer := startLoop(t, nil, pool, sinks)
	capturer.err = errors.New("grab failed")

	l.RequestCapture()
	sinks.waitNotice(t, "Capture failed")

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.submits != 0 {
		t.Errorf("nothing should be submitted when capture fails")
	}
}

func TestClipboardErrorNotifies(t *testing.T) {
	pool := &fakePool{text: "テキスト"}
	sinks := &sinkRecorder{clipErr: errors.New("no clipboard")}
	l, _ := startLoop(t, nil, pool, sinks)

	l.RequestCapture()
	sinks.waitNotice(t, "Clipboard error")
}
