package preprocess

import (
	"image"
	"log"
	"strings"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Mode selects a preprocessing pipeline of increasing cost.
type Mode string

const (
	// ModeNone only normalizes the channel layout. Recommended default:
	// the reference recognition model is trained on raw captures.
	ModeNone Mode = "none"
	// ModeMinimal adds a light contrast stretch for faded screenshots.
	ModeMinimal Mode = "minimal"
	// ModeEnhanced upscales before enhancing so sharpening operates on the
	// higher-resolution pixel grid.
	ModeEnhanced Mode = "enhanced"
	// ModeAdvanced binarizes with locally adaptive thresholding. Falls back
	// to ModeEnhanced when the advanced stage set is not registered.
	ModeAdvanced Mode = "advanced"
)

const (
	upscaleFactor    = 2
	minimalContrast  = 20
	enhancedContrast = 40
	sharpenRadius    = 1.0
	sharpenAmount    = 0.3

	maxDimension = 2048
	minDimension = 32
)

// ParseMode resolves a settings-store identifier, defaulting to ModeNone.
func ParseMode(value string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeMinimal:
		return ModeMinimal
	case ModeEnhanced:
		return ModeEnhanced
	case ModeAdvanced:
		return ModeAdvanced
	default:
		return ModeNone
	}
}

// Apply runs the selected pipeline. Pure function of (img, mode): no shared
// mutable state, safe to call from any goroutine. Output is always NRGBA.
func Apply(img image.Image, mode Mode) *image.NRGBA {
	switch mode {
	case ModeMinimal:
		return applyMinimal(img)
	case ModeEnhanced:
		return applyEnhanced(img)
	case ModeAdvanced:
		return applyAdvanced(img)
	default:
		return Normalize(img)
	}
}

// Normalize guarantees the fixed NRGBA channel layout every engine expects.
func Normalize(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

func applyMinimal(img image.Image) *image.NRGBA {
	return imaging.AdjustContrast(Normalize(img), minimalContrast)
}

func applyEnhanced(img image.Image) *image.NRGBA {
	src := Normalize(img)
	b := src.Bounds()
	upscaled := imaging.Resize(src, b.Dx()*upscaleFactor, b.Dy()*upscaleFactor, imaging.Lanczos)
	contrasted := imaging.AdjustContrast(upscaled, enhancedContrast)
	return imaging.Clone(effect.UnsharpMask(contrasted, sharpenRadius, sharpenAmount))
}

func applyAdvanced(img image.Image) *image.NRGBA {
	if advancedStages == nil {
		log.Printf("Preprocess: advanced stage set unavailable, falling back to enhanced")
		return applyEnhanced(img)
	}
	return advancedStages(Normalize(img))
}

// advancedStages is registered by the extended backend (advanced.go). Nil
// when the backend is absent; ModeAdvanced then degrades to ModeEnhanced.
var advancedStages func(*image.NRGBA) *image.NRGBA

// AvailableModes lists the modes usable in this build, cheapest first.
func AvailableModes() []Mode {
	modes := []Mode{ModeNone, ModeMinimal, ModeEnhanced}
	if advancedStages != nil {
		modes = append(modes, ModeAdvanced)
	}
	return modes
}

// ModeDescription returns user-facing text for mode pickers.
func ModeDescription(mode Mode) string {
	switch mode {
	case ModeMinimal:
		return "Minimal (light contrast boost)"
	case ModeEnhanced:
		return "Enhanced (upscale + sharpen)"
	case ModeAdvanced:
		return "Advanced (adaptive binarization)"
	default:
		return "None (recommended)"
	}
}

// OptimizeSize bounds very large captures and upscales tiny text so
// characters land near the size the recognition models were trained on.
func OptimizeSize(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	longest := w
	if h > longest {
		longest = h
	}
	if longest > maxDimension {
		ratio := float64(maxDimension) / float64(longest)
		img = imaging.Resize(img, int(float64(w)*ratio), int(float64(h)*ratio), imaging.Lanczos)
		b = img.Bounds()
		w, h = b.Dx(), b.Dy()
	}

	// Rough heuristic: Japanese glyphs fill about 1/8 of the shorter side.
	shortest := w
	if h < shortest {
		shortest = h
	}
	estimatedGlyph := float64(shortest) / 8
	if estimatedGlyph < minDimension && estimatedGlyph > 0 {
		scale := (minDimension * 2) / estimatedGlyph
		if scale > 3 {
			scale = 3
		}
		img = imaging.Resize(img, int(float64(w)*scale), int(float64(h)*scale), imaging.Lanczos)
	}
	return img
}
