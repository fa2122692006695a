package annoconv

// Bounding box validation and repair.

import (
	"log"
	"math"
)

// Box is an axis-aligned rectangle in image-pixel coordinates, given as the
// top-left origin and its size (the COCO bbox convention).
type Box struct {
	X, Y float64 // Top-left corner.
	W, H float64 // Width and height, nominally positive.
}

// Area is the box area W*H.
func (b Box) Area() float64 {
	return b.W * b.H
}

// ImageBounds is the pixel size of the image a box is defined against.
type ImageBounds struct {
	Width  int
	Height int
}

// RepairTag classifies the result of a repair decision.
type RepairTag int

const (
	// Rejected marks a box that cannot be used. The anchor point lies outside
	// the valid coordinate space, which is not recoverable.
	Rejected RepairTag = iota
	// Accepted marks a box that passed validation unchanged.
	Accepted
	// Repaired marks a box that was replaced with a corrected one.
	Repaired
)

// RepairOutcome is the tagged result of RepairBox. Exactly one tag applies per
// input. Box holds the original box for Accepted and the corrected box for
// Repaired; it is meaningless for Rejected.
type RepairOutcome struct {
	Tag RepairTag
	Box Box
}

// minSizeExpansion is the width/height assigned to a degenerate (zero or
// negative) dimension, chosen so the result is visually and numerically
// non-degenerate.
const minSizeExpansion = 2.0

// RepairBox decides whether box is acceptable against bounds, unrecoverable,
// or repairable, and produces a corrected box in the latter case.
//
// A box whose origin is negative or lies at/beyond the image extent is
// rejected outright. All other irregularities are recoverable: degenerate
// width/height is expanded to a fixed minimum, a box below minArea is scaled
// up uniformly (preserving aspect ratio) with expansionFactor headroom so the
// result clears the threshold with margin, and finally the origin is clamped
// so the box lies fully inside the image. Note that a box whose far edge
// overflows the image is not rejected; the overflow is resolved by the clamp.
//
// An Accepted or Repaired box satisfies: non-negative origin, positive size,
// area >= minArea, and x+w <= bounds.Width, y+h <= bounds.Height.
//
// RepairBox is a pure function. Malformed boxes are routine input from noisy
// annotation data, so invalid input is expressed through the Rejected tag,
// never an error.
func RepairBox(box Box, bounds ImageBounds, minArea, expansionFactor float64) RepairOutcome {
	imgW := float64(bounds.Width)
	imgH := float64(bounds.Height)

	// The anchor point must lie inside the image.
	if box.X < 0 || box.Y < 0 || box.X >= imgW || box.Y >= imgH {
		return RepairOutcome{Tag: Rejected}
	}

	fixed := box

	// A zero or negative dimension is commonly an annotation artifact
	// (rounding to zero) rather than a semantically invalid region.
	if fixed.W <= 0 {
		fixed.W = minSizeExpansion
	}
	if fixed.H <= 0 {
		fixed.H = minSizeExpansion
	}

	// Scale undersized boxes uniformly past the area threshold.
	if area := fixed.W * fixed.H; area < minArea {
		scale := math.Sqrt(minArea/area) * expansionFactor
		fixed.W *= scale
		fixed.H *= scale
	}

	// A box larger than the image cannot be made to fit by shifting alone;
	// shrink it to the image extent so the clamp interval below is never
	// empty.
	if fixed.W > imgW {
		fixed.W = imgW
	}
	if fixed.H > imgH {
		fixed.H = imgH
	}

	// Shift the (possibly enlarged) box back inside the image. This does not
	// change the size again.
	fixed.X = clampFloat(fixed.X, 0, imgW-fixed.W)
	fixed.Y = clampFloat(fixed.Y, 0, imgH-fixed.H)

	if fixed == box {
		return RepairOutcome{Tag: Accepted, Box: box}
	}
	return RepairOutcome{Tag: Repaired, Box: fixed}
}

// clampFloat clamps v to [lo, hi]. The lower bound wins if hi < lo.
func clampFloat(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// RepairStats tallies the outcomes of a batch repair pass.
type RepairStats struct {
	Accepted int
	Repaired int
	Rejected int
}

// RepairBboxes validates every annotation bounding box against its image size
// and repairs recoverable ones in place. Rejected annotations are deleted.
// Files with an unknown image size (width or height <= 0) are left untouched.
//
// Each box is evaluated independently; the failure of one box has no effect
// on any other box.
func (data *AnnotatedFiles) RepairBboxes(minArea, expansionFactor float64) RepairStats {
	var stats RepairStats

	for dataIdx := range *data {
		f := &(*data)[dataIdx]
		if f.Width <= 0 || f.Height <= 0 {
			log.Printf("Unknown image size, not validating bboxes for %q", f.FilePath)
			continue
		}
		bounds := ImageBounds{Width: f.Width, Height: f.Height}

		for i, aLen := 0, len(f.Annotations); i < aLen; i++ {
			a := &f.Annotations[i]
			box := Box{
				X: a.Coords[0],
				Y: a.Coords[1],
				W: a.Coords[2] - a.Coords[0],
				H: a.Coords[3] - a.Coords[1],
			}

			outcome := RepairBox(box, bounds, minArea, expansionFactor)
			switch outcome.Tag {
			case Rejected:
				stats.Rejected++
				f.Annotations = deleteAnnotation(f.Annotations, i)
				aLen--
				i--
			case Repaired:
				stats.Repaired++
				a.Coords[0] = outcome.Box.X
				a.Coords[1] = outcome.Box.Y
				a.Coords[2] = outcome.Box.X + outcome.Box.W
				a.Coords[3] = outcome.Box.Y + outcome.Box.H
			default:
				stats.Accepted++
			}
		}
	}

	log.Printf("Bbox validation: %d accepted, %d repaired, %d rejected",
		stats.Accepted, stats.Repaired, stats.Rejected)
	return stats
}
