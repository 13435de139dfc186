package engine

import (
	"errors"
	"image"
	"log"
	"strings"
	"sync"
	"time"
)

// Variant identifies an interchangeable recognition backend.
type Variant string

const (
	// VariantVisionLM is a hosted vision-transformer model. Best accuracy
	// for stylized manga text.
	VariantVisionLM Variant = "vision_lm"
	// VariantTesseract is the local lightweight detector. Faster and
	// offline, good for plain Japanese text.
	VariantTesseract Variant = "tesseract"
)

// Info is display metadata for engine pickers.
type Info struct {
	Name        string
	Description string
}

var variantInfo = map[Variant]Info{
	VariantVisionLM: {
		Name:        "Vision LM",
		Description: "Hosted vision-transformer model. Best accuracy for stylized manga text.",
	},
	VariantTesseract: {
		Name:        "Tesseract (jpn + jpn_vert)",
		Description: "Local lightweight model. Faster inference, works offline.",
	},
}

// VariantInfo returns display metadata, falling back to the raw identifier.
func VariantInfo(v Variant) Info {
	if info, ok := variantInfo[v]; ok {
		return info
	}
	return Info{Name: string(v)}
}

// Variants lists selectable variants in preference order.
func Variants() []Variant {
	return []Variant{VariantVisionLM, VariantTesseract}
}

// ParseVariant resolves a settings-store identifier, defaulting to VisionLM.
func ParseVariant(value string) Variant {
	switch Variant(strings.ToLower(strings.TrimSpace(value))) {
	case VariantTesseract:
		return VariantTesseract
	default:
		return VariantVisionLM
	}
}

// ErrNoActiveEngine is returned when inference is requested with no
// selectable variant.
var ErrNoActiveEngine = errors.New("no active recognition engine")

// Manager owns one live Engine per variant for the process lifetime,
// constructed lazily behind a construction lock, and presents a uniform
// façade over whichever variant is selected. Switching variants does not
// load or unload anything: a previously loaded variant stays resident until
// the caller explicitly unloads it.
type Manager struct {
	mu      sync.Mutex
	active  Variant
	engines map[Variant]*Engine
	build   map[Variant]func() *Engine
}

// NewManager builds the variant registry. The vision config is captured now;
// the engine itself is not constructed until first selected.
func NewManager(visionCfg VisionConfig) *Manager {
	return &Manager{
		active:  VariantVisionLM,
		engines: make(map[Variant]*Engine),
		build: map[Variant]func() *Engine{
			VariantVisionLM:  func() *Engine { return newVisionEngine(visionCfg) },
			VariantTesseract: func() *Engine { return newTesseractEngine(nil) },
		},
	}
}

// Select records the active variant. It never loads or unloads; callers must
// explicitly request a (re)load after switching.
func (m *Manager) Select(v Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v != m.active {
		log.Printf("Manager: switching engine from %s to %s", m.active, v)
		m.active = v
	}
}

// Active returns the currently selected variant.
func (m *Manager) Active() Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// activeEngine lazily constructs the selected variant's singleton.
func (m *Manager) activeEngine() *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineLocked(m.active)
}

func (m *Manager) engineLocked(v Variant) *Engine {
	if e, ok := m.engines[v]; ok {
		return e
	}
	build, ok := m.build[v]
	if !ok {
		return nil
	}
	e := build()
	m.engines[v] = e
	return e
}

// LoadActiveAsync loads the selected engine in the background.
func (m *Manager) LoadActiveAsync(onComplete func(ok bool, err error)) {
	e := m.activeEngine()
	if e == nil {
		if onComplete != nil {
			onComplete(false, ErrNoActiveEngine)
		}
		return
	}
	log.Printf("Manager: loading %s...", VariantInfo(Variant(e.Name())).Name)
	e.LoadAsync(onComplete)
}

// WaitUntilLoaded blocks until the selected engine's load completes or the
// timeout elapses. Returns whether it is loaded.
func (m *Manager) WaitUntilLoaded(timeout time.Duration) bool {
	e := m.activeEngine()
	return e != nil && e.WaitUntilLoaded(timeout)
}

// Infer delegates to the selected engine.
func (m *Manager) Infer(img image.Image) (string, error) {
	e := m.activeEngine()
	if e == nil {
		return "", ErrNoActiveEngine
	}
	return e.Infer(img)
}

// IsLoaded reports the selected engine's advisory loaded flag.
func (m *Manager) IsLoaded() bool {
	e := m.activeEngine()
	return e != nil && e.IsLoaded()
}

// IsLoading reports the selected engine's advisory loading flag.
func (m *Manager) IsLoading() bool {
	e := m.activeEngine()
	return e != nil && e.IsLoading()
}

// LoadError returns the selected engine's stored load failure, nil when none.
func (m *Manager) LoadError() *LoadError {
	e := m.activeEngine()
	if e == nil {
		return nil
	}
	return e.LoadError()
}

// Accelerated reports the selected engine's cached accelerator probe.
func (m *Manager) Accelerated() AccelState {
	e := m.activeEngine()
	if e == nil {
		return AccelUnavailable
	}
	return e.Accelerated()
}

// UnloadActive releases the selected engine's model.
func (m *Manager) UnloadActive() {
	if e := m.activeEngine(); e != nil && e.IsLoaded() {
		e.Unload()
	}
}

// UnloadAll releases every constructed engine's model. Instances stay
// registered; only the heavy resources are freed.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	for _, e := range engines {
		if e.IsLoaded() {
			e.Unload()
		}
	}
}
