package engine

import (
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"manga-screen-ocr/src/screenshot"
)

// tesseractBackend is the lightweight local variant. Japanese text in manga
// runs both horizontally and vertically, so both traineddata files are
// required.
type tesseractBackend struct {
	mu     sync.Mutex // gosseract clients are not safe for concurrent use
	client *gosseract.Client
	langs  []string
}

func newTesseractEngine(langs []string) *Engine {
	if len(langs) == 0 {
		langs = []string{"jpn", "jpn_vert"}
	}
	return newEngine(string(VariantTesseract), &tesseractBackend{langs: langs})
}

func (t *tesseractBackend) load() (AccelState, error) {
	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		// libtesseract itself failed to answer: treat as a native library
		// problem rather than missing language data.
		return AccelUnavailable, fmt.Errorf("tesseract shared library unavailable: %v", err)
	}
	for _, want := range t.langs {
		if !containsString(available, want) {
			return AccelUnavailable, fmt.Errorf("tesseract language data %q not installed", want)
		}
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(t.langs...); err != nil {
		client.Close()
		return AccelUnavailable, fmt.Errorf("failed to set tesseract languages: %v", err)
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	// The gosseract binding runs CPU-only; no accelerator to probe.
	return AccelUnavailable, nil
}

func (t *tesseractBackend) recognize(img *image.NRGBA) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return "", fmt.Errorf("tesseract client released")
	}

	pngData, err := screenshot.EncodePNG(img)
	if err != nil {
		return "", err
	}
	if err := t.client.SetImageFromBytes(pngData); err != nil {
		return "", fmt.Errorf("failed to set image: %v", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %v", err)
	}
	return text, nil
}

func (t *tesseractBackend) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		_ = t.client.Close()
		t.client = nil
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
