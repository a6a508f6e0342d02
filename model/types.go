// Package model defines the shared types of the logoann system.
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidBoundingBox is returned by BoundingBox.Validate for boxes
// outside the unit square or with an empty extent.
var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// LogoID is the external identifier of a logo region. It is assigned by the
// upstream annotation pipeline (the primary key of the annotation table) and
// is stable across the frozen index and the embedding store.
type LogoID int64

// Vector is a fixed-width logo embedding. Vectors are only comparable within
// the same model/index family.
type Vector []float32

// Neighbor is a single entry of a ranked nearest-neighbor result.
type Neighbor struct {
	// ID is the external identifier of the matched logo.
	ID LogoID `json:"logo_id"`

	// Distance is the distance to the query under the index metric.
	// Lower values indicate higher similarity.
	Distance float32 `json:"distance"`
}

// BoundingBox is a normalized crop region within a source image.
// Coordinates are fractions of image width/height with the origin at the
// top-left corner.
type BoundingBox struct {
	YMin float64 `json:"y_min"`
	XMin float64 `json:"x_min"`
	YMax float64 `json:"y_max"`
	XMax float64 `json:"x_max"`
}

// Validate checks that the box is inside the unit square and non-empty.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.YMin, b.XMin, b.YMax, b.XMax} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: coordinate %v out of [0,1]", ErrInvalidBoundingBox, v)
		}
	}
	if b.YMin >= b.YMax || b.XMin >= b.XMax {
		return fmt.Errorf("%w: empty extent (%v,%v,%v,%v)", ErrInvalidBoundingBox, b.YMin, b.XMin, b.YMax, b.XMax)
	}
	return nil
}

// UnmarshalJSON accepts both the object form and the positional array form
// [y_min, x_min, y_max, x_max] used by the annotation pipeline.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	type plain BoundingBox
	var obj plain
	if err := unmarshalStrict(data, &obj); err == nil {
		*b = BoundingBox(obj)
		return nil
	}
	var arr []float64
	if err := unmarshalStrict(data, &arr); err != nil {
		return fmt.Errorf("bounding box must be an object or a 4-element array: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bounding box array must have 4 elements, got %d", len(arr))
	}
	*b = BoundingBox{YMin: arr[0], XMin: arr[1], YMax: arr[2], XMax: arr[3]}
	return nil
}
