package processor

import (
	"image"

	"github.com/disintegration/imaging"
)

// Downscale fits img inside a maxDim x maxDim box keeping the aspect ratio.
// Images already inside the box, or maxDim <= 0, are returned untouched.
func Downscale(img image.Image, maxDim int) image.Image {
	if img == nil || maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}
