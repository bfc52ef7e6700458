package imagedecode

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Lanczos3 is a windowed sinc kernel with a support of three pixels.
var Lanczos3 = &draw.Kernel{Support: 3, At: lanczos3}

func lanczos3(t float64) float64 {
	if t < 0 {
		t = -t
	}
	if t == 0 {
		return 1
	}
	if t >= 3 {
		return 0
	}
	pt := math.Pi * t
	return 3 * math.Sin(pt) * math.Sin(pt/3) / (pt * pt)
}

// FillRect returns the centred part of a srcW×srcH image that has the aspect ratio of
// dstW×dstH. Scaling that part to the destination fills it without letterboxing.
func FillRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}

	scale := math.Max(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))

	cropW := int(math.Round(float64(dstW) / scale))
	cropH := int(math.Round(float64(dstH) / scale))
	cropW = min(max(cropW, 1), srcW)
	cropH = min(max(cropH, 1), srcH)

	x := (srcW - cropW) / 2
	y := (srcH - cropH) / 2
	return image.Rect(x, y, x+cropW, y+cropH)
}

// ScaleFill scales img to exactly targetW×targetH, cropping whatever does not fit.
func ScaleFill(img image.Image, targetW, targetH int) *image.RGBA {
	b := img.Bounds()
	crop := FillRect(b.Dx(), b.Dy(), targetW, targetH).Add(b.Min)

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	if crop.Empty() {
		return dst
	}

	if crop.Dx() == targetW && crop.Dy() == targetH {
		draw.Copy(dst, image.Point{}, img, crop, draw.Src, nil)
		return dst
	}

	Lanczos3.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst
}
