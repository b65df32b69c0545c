package render

import "image"

// FitRect computes the aspect-fit-contain rectangle for media of intrinsic
// size (srcW, srcH) inside a (dstW, dstH) canvas: the media is scaled to the
// largest size that fits entirely inside the canvas while preserving aspect
// ratio, then centered on both axes.
func FitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}

	scaleX := float64(dstW) / float64(srcW)
	scaleY := float64(dstH) / float64(srcH)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	w := int(float64(srcW)*scale + 0.5)
	h := int(float64(srcH)*scale + 0.5)
	x := (dstW - w) / 2
	y := (dstH - h) / 2

	return image.Rect(x, y, x+w, y+h)
}
