package engine

import (
	"errors"
	"testing"
	"time"
)

// fakeManager builds a Manager whose variants are backed by fake backends so
// tests never touch tesseract or the network.
func fakeManager(backends map[Variant]*fakeBackend) *Manager {
	m := &Manager{
		active:  VariantVisionLM,
		engines: make(map[Variant]*Engine),
		build:   make(map[Variant]func() *Engine),
	}
	for v, fb := range backends {
		v, fb := v, fb
		m.build[v] = func() *Engine { return newEngine(string(v), fb) }
	}
	return m
}

func TestManagerLazySingletonPerVariant(t *testing.T) {
	m := fakeManager(map[Variant]*fakeBackend{
		VariantVisionLM:  {},
		VariantTesseract: {},
	})

	first := m.activeEngine()
	if first == nil {
		t.Fatal("expected engine instance")
	}

	m.Select(VariantTesseract)
	second := m.activeEngine()
	if second == first {
		t.Fatal("variants must have distinct instances")
	}

	// Switching back must return the same instance, not rebuild it.
	m.Select(VariantVisionLM)
	if m.activeEngine() != first {
		t.Error("switching back should reuse the existing instance")
	}
}

func TestManagerSwitchPreservesResidency(t *testing.T) {
	fbVision := &fakeBackend{}
	m := fakeManager(map[Variant]*fakeBackend{
		VariantVisionLM:  fbVision,
		VariantTesseract: {},
	})

	done := make(chan struct{})
	m.LoadActiveAsync(func(ok bool, err error) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("load did not complete")
	}

	m.Select(VariantTesseract)
	m.Select(VariantVisionLM)
	if !m.IsLoaded() {
		t.Error("previously loaded variant should stay resident across switches")
	}
	if loads, _, _ := fbVision.counts(); loads != 1 {
		t.Errorf("load executions: got %d, want 1", loads)
	}
}

func TestManagerWaitUntilLoaded(t *testing.T) {
	gate := make(chan struct{})
	m := fakeManager(map[Variant]*fakeBackend{
		VariantVisionLM: {gate: gate},
	})

	m.LoadActiveAsync(nil)
	if m.WaitUntilLoaded(20 * time.Millisecond) {
		t.Error("wait should time out while the load is in flight")
	}

	close(gate)
	if !m.WaitUntilLoaded(time.Second) {
		t.Error("wait should succeed once the load completes")
	}
}

func TestManagerInferNoActiveEngine(t *testing.T) {
	m := fakeManager(nil) // no variants constructible
	if _, err := m.Infer(testImage()); !errors.Is(err, ErrNoActiveEngine) {
		t.Errorf("error: got %v, want ErrNoActiveEngine", err)
	}
}

func TestManagerInferPropagatesEngineFailure(t *testing.T) {
	m := fakeManager(map[Variant]*fakeBackend{VariantVisionLM: {}})
	if _, err := m.Infer(testImage()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("error: got %v, want ErrNotLoaded", err)
	}
}

func TestManagerUnloadAll(t *testing.T) {
	fbVision := &fakeBackend{}
	fbTess := &fakeBackend{}
	m := fakeManager(map[Variant]*fakeBackend{
		VariantVisionLM:  fbVision,
		VariantTesseract: fbTess,
	})

	for _, v := range []Variant{VariantVisionLM, VariantTesseract} {
		m.Select(v)
		done := make(chan struct{})
		m.LoadActiveAsync(func(bool, error) { close(done) })
		<-done
	}

	m.UnloadAll()
	if m.IsLoaded() {
		t.Error("active engine should be unloaded")
	}
	if _, releases, _ := fbVision.counts(); releases != 1 {
		t.Errorf("vision releases: got %d, want 1", releases)
	}
	if _, releases, _ := fbTess.counts(); releases != 1 {
		t.Errorf("tesseract releases: got %d, want 1", releases)
	}
}

func TestParseVariant(t *testing.T) {
	cases := map[string]Variant{
		"tesseract": VariantTesseract,
		"VISION_LM": VariantVisionLM,
		"unknown":   VariantVisionLM,
		"":          VariantVisionLM,
	}
	for in, want := range cases {
		if got := ParseVariant(in); got != want {
			t.Errorf("ParseVariant(%q): got %q, want %q", in, got, want)
		}
	}
}
