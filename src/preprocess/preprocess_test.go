package preprocess

import (
	"image"
	"image/color"
	"testing"
)

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"none":      ModeNone,
		"MINIMAL":   ModeMinimal,
		" enhanced": ModeEnhanced,
		"advanced":  ModeAdvanced,
		"bogus":     ModeNone,
		"":          ModeNone,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestNoneIsIdentityOnNormalizedInput(t *testing.T) {
	src := gradientImage(40, 20)
	out := Apply(src, ModeNone)

	if out.Bounds() != src.Bounds() {
		t.Fatalf("bounds changed: got %v, want %v", out.Bounds(), src.Bounds())
	}
	for i := range src.Pix {
		if out.Pix[i] != src.Pix[i] {
			t.Fatalf("pixel data changed at offset %d: got %d, want %d", i, out.Pix[i], src.Pix[i])
		}
	}
}

func TestMinimalKeepsDimensions(t *testing.T) {
	src := gradientImage(40, 20)
	out := Apply(src, ModeMinimal)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 20 {
		t.Errorf("dimensions: got %dx%d, want 40x20", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestEnhancedDoublesDimensions(t *testing.T) {
	src := gradientImage(40, 20)
	out := Apply(src, ModeEnhanced)
	if out.Bounds().Dx() != 80 || out.Bounds().Dy() != 40 {
		t.Errorf("dimensions: got %dx%d, want 80x40", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestAdvancedProducesBinaryUpscaledOutput(t *testing.T) {
	src := gradientImage(32, 16)
	out := Apply(src, ModeAdvanced)
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 32 {
		t.Fatalf("dimensions: got %dx%d, want 64x32", out.Bounds().Dx(), out.Bounds().Dy())
	}
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != out.Pix[i+1] || out.Pix[i] != out.Pix[i+2] {
			t.Fatal("advanced output should be grayscale")
		}
	}
}

func TestAdvancedFallsBackWithoutStageSet(t *testing.T) {
	saved := advancedStages
	advancedStages = nil
	defer func() { advancedStages = saved }()

	src := gradientImage(40, 20)
	out := Apply(src, ModeAdvanced)
	// Fallback is the enhanced pipeline, so the 2x upscale still happens.
	if out.Bounds().Dx() != 80 || out.Bounds().Dy() != 40 {
		t.Errorf("fallback dimensions: got %dx%d, want 80x40", out.Bounds().Dx(), out.Bounds().Dy())
	}

	modes := AvailableModes()
	for _, m := range modes {
		if m == ModeAdvanced {
			t.Error("AvailableModes should omit advanced without the stage set")
		}
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	src := gradientImage(24, 24)
	for _, mode := range []Mode{ModeNone, ModeMinimal, ModeEnhanced, ModeAdvanced} {
		a := Apply(src, mode)
		b := Apply(src, mode)
		if len(a.Pix) != len(b.Pix) {
			t.Fatalf("%s: size mismatch between runs", mode)
		}
		for i := range a.Pix {
			if a.Pix[i] != b.Pix[i] {
				t.Fatalf("%s: nondeterministic output at offset %d", mode, i)
			}
		}
	}
}

func TestOptimizeSizeCapsLargeImages(t *testing.T) {
	src := gradientImage(4096, 4096)
	out := OptimizeSize(src)
	if out.Bounds().Dx() != maxDimension || out.Bounds().Dy() != maxDimension {
		t.Errorf("dimensions: got %dx%d, want %dx%d",
			out.Bounds().Dx(), out.Bounds().Dy(), maxDimension, maxDimension)
	}
}
