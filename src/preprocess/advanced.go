package preprocess

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Advanced stage set: grayscale -> 2x Lanczos upscale -> Gaussian-weighted
// adaptive threshold -> median denoise -> NRGBA. Trades color information for
// robustness against uneven local illumination.

const (
	adaptiveBlockSize = 11
	adaptiveOffset    = 2
	denoiseRadius     = 3
)

func init() {
	advancedStages = runAdvanced
}

func runAdvanced(src *image.NRGBA) *image.NRGBA {
	gray := imaging.Grayscale(src)
	b := gray.Bounds()
	upscaled := imaging.Resize(gray, b.Dx()*upscaleFactor, b.Dy()*upscaleFactor, imaging.Lanczos)

	binary := adaptiveThreshold(upscaled, adaptiveBlockSize, adaptiveOffset)
	denoised := effect.Median(binary, denoiseRadius)
	return imaging.Clone(denoised)
}

// adaptiveThreshold binarizes against a Gaussian-weighted local mean: a pixel
// is foreground when it exceeds the blurred neighborhood mean minus offset.
// blockSize plays the role of the local window (Gaussian radius blockSize/2).
func adaptiveThreshold(gray *image.NRGBA, blockSize, offset int) *image.NRGBA {
	local := blur.Gaussian(gray, float64(blockSize)/2)

	b := gray.Bounds()
	out := image.NewNRGBA(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			gi := gray.PixOffset(b.Min.X+x, b.Min.Y+y)
			li := local.PixOffset(b.Min.X+x, b.Min.Y+y)
			oi := out.PixOffset(b.Min.X+x, b.Min.Y+y)

			var v uint8
			if int(gray.Pix[gi]) > int(local.Pix[li])-offset {
				v = 255
			}
			out.Pix[oi+0] = v
			out.Pix[oi+1] = v
			out.Pix[oi+2] = v
			out.Pix[oi+3] = 255
		}
	}
	return out
}
