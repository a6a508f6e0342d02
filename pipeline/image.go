package pipeline

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/hupe1980/logoann/model"
)

// cropRect maps a normalized bounding box (fractions of width/height,
// origin top-left) to pixel coordinates within bounds.
func cropRect(bounds image.Rectangle, box model.BoundingBox) image.Rectangle {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	r := image.Rect(
		bounds.Min.X+int(box.XMin*w),
		bounds.Min.Y+int(box.YMin*h),
		bounds.Min.X+int(box.XMax*w+0.5),
		bounds.Min.Y+int(box.YMax*h+0.5),
	)
	return r.Intersect(bounds)
}

// prepare crops the source image to the bounding box and resizes the crop
// to a size×size RGB image. Drawing into an RGBA destination also
// normalizes sources with other channel layouts (gray, paletted, CMYK).
func prepare(src image.Image, box model.BoundingBox, size int) image.Image {
	srcRect := cropRect(src.Bounds(), box)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, srcRect, draw.Src, nil)
	return dst
}
