package annoconv

import (
	"math"
	"testing"
)

const floatTol = 1e-9

func checkBoxValid(t *testing.T, b Box, bounds ImageBounds, minArea float64) {
	t.Helper()
	if b.W <= 0 || b.H <= 0 {
		t.Errorf("box %+v has non-positive size", b)
	}
	if b.Area() < minArea-floatTol {
		t.Errorf("box %+v area %g below minimum %g", b, b.Area(), minArea)
	}
	if b.X < 0 || b.Y < 0 ||
			b.X+b.W > float64(bounds.Width)+floatTol ||
			b.Y+b.H > float64(bounds.Height)+floatTol {
		t.Errorf("box %+v not within bounds %+v", b, bounds)
	}
}

func TestRepairBoxRejectsInvalidOrigin(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 100}

	tests := []struct {
		name string
		box  Box
	}{
		{"negative x", Box{X: -1, Y: 5, W: 10, H: 10}},
		{"negative y", Box{X: 5, Y: -0.5, W: 10, H: 10}},
		{"x at image width", Box{X: 100, Y: 5, W: 10, H: 10}},
		{"x beyond image width", Box{X: 150, Y: 5, W: 10, H: 10}},
		{"y at image height", Box{X: 5, Y: 100, W: 10, H: 10}},
		{"y beyond image height", Box{X: 5, Y: 130, W: 10, H: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := RepairBox(tt.box, bounds, 1, 1.2)
			if outcome.Tag != Rejected {
				t.Errorf("RepairBox(%+v) = %v, want Rejected", tt.box, outcome.Tag)
			}
		})
	}
}

func TestRepairBoxAcceptsValidBox(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 100}
	box := Box{X: 10, Y: 10, W: 20, H: 20}

	outcome := RepairBox(box, bounds, 1, 1.2)
	if outcome.Tag != Accepted {
		t.Fatalf("RepairBox(%+v) = %v, want Accepted", box, outcome.Tag)
	}
	if outcome.Box != box {
		t.Errorf("accepted box changed: got %+v, want %+v", outcome.Box, box)
	}
}

func TestRepairBoxExpandsDegenerateWidth(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 100}
	box := Box{X: 5, Y: 5, W: 0, H: 10}

	outcome := RepairBox(box, bounds, 1, 1.2)
	if outcome.Tag != Repaired {
		t.Fatalf("RepairBox(%+v) = %v, want Repaired", box, outcome.Tag)
	}
	if outcome.Box.W != 2 {
		t.Errorf("width: got %g, want 2", outcome.Box.W)
	}
	if outcome.Box.H != 10 {
		t.Errorf("height: got %g, want 10", outcome.Box.H)
	}
	checkBoxValid(t, outcome.Box, bounds, 1)
}

func TestRepairBoxClampsOverflow(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 100}
	box := Box{X: 98, Y: 98, W: 5, H: 5}

	outcome := RepairBox(box, bounds, 1, 1.2)
	if outcome.Tag != Repaired {
		t.Fatalf("RepairBox(%+v) = %v, want Repaired", box, outcome.Tag)
	}
	if outcome.Box.X+outcome.Box.W > 100 || outcome.Box.Y+outcome.Box.H > 100 {
		t.Errorf("box %+v still overflows the image", outcome.Box)
	}
	if outcome.Box.W != 5 || outcome.Box.H != 5 {
		t.Errorf("the clamp changed the box size: %+v", outcome.Box)
	}
}

func TestRepairBoxScalesUndersizedBox(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 100}
	box := Box{X: 40, Y: 40, W: 1, H: 0.5}
	const minArea = 4.0
	const expansion = 1.2

	outcome := RepairBox(box, bounds, minArea, expansion)
	if outcome.Tag != Repaired {
		t.Fatalf("RepairBox(%+v) = %v, want Repaired", box, outcome.Tag)
	}
	checkBoxValid(t, outcome.Box, bounds, minArea)

	// The uniform scaling preserves the aspect ratio.
	origRatio := box.W / box.H
	newRatio := outcome.Box.W / outcome.Box.H
	if math.Abs(origRatio-newRatio) > floatTol {
		t.Errorf("aspect ratio changed: got %g, want %g", newRatio, origRatio)
	}

	// The expansion factor provides headroom past the threshold.
	wantArea := minArea * expansion * expansion
	if math.Abs(outcome.Box.Area()-wantArea) > 1e-6 {
		t.Errorf("area: got %g, want %g", outcome.Box.Area(), wantArea)
	}
}

func TestRepairBoxInvariants(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 80}
	const minArea = 4.0

	boxes := []Box{
		{X: 0, Y: 0, W: 100, H: 80},
		{X: 10, Y: 10, W: 0, H: 0},
		{X: 99.5, Y: 79.5, W: 30, H: 30},
		{X: 50, Y: 50, W: 0.1, H: 0.1},
		{X: 0, Y: 0, W: 1, H: 79},
		{X: 90, Y: 5, W: -3, H: 12},
		{X: 25, Y: 70, W: 60, H: 60},
	}

	for _, box := range boxes {
		outcome := RepairBox(box, bounds, minArea, 1.2)
		if outcome.Tag == Rejected {
			t.Errorf("RepairBox(%+v) = Rejected, want a repair", box)
			continue
		}
		checkBoxValid(t, outcome.Box, bounds, minArea)
	}
}

func TestRepairBoxIdempotent(t *testing.T) {
	bounds := ImageBounds{Width: 100, Height: 100}
	const minArea = 4.0
	const expansion = 1.2

	boxes := []Box{
		{X: 10, Y: 10, W: 20, H: 20},
		{X: 5, Y: 5, W: 0, H: 10},
		{X: 98, Y: 98, W: 5, H: 5},
		{X: 40, Y: 40, W: 1, H: 0.5},
	}

	for _, box := range boxes {
		first := RepairBox(box, bounds, minArea, expansion)
		if first.Tag == Rejected {
			t.Fatalf("RepairBox(%+v) = Rejected, test expects a usable box", box)
		}

		second := RepairBox(first.Box, bounds, minArea, expansion)
		if second.Tag != Accepted {
			t.Errorf("re-applying to %+v = %v, want Accepted", first.Box, second.Tag)
		}
		if second.Box != first.Box {
			t.Errorf("re-applying changed the box: got %+v, want %+v", second.Box, first.Box)
		}
	}
}

func TestRepairBboxes(t *testing.T) {
	data := AnnotatedFiles{
		{
			FilePath: "a.jpg",
			Width:    100,
			Height:   100,
			Annotations: []Annotation{
				{Coords: [4]float64{10, 10, 30, 30}, Label: "cat"},  // Valid.
				{Coords: [4]float64{-5, 10, 20, 30}, Label: "dog"},  // Rejected.
				{Coords: [4]float64{98, 98, 103, 103}, Label: "rat"}, // Clamped.
			},
		},
	}

	stats := data.RepairBboxes(1, 1.2)
	if stats.Accepted != 1 || stats.Repaired != 1 || stats.Rejected != 1 {
		t.Fatalf("stats = %+v, want 1 accepted, 1 repaired, 1 rejected", stats)
	}

	if got := len(data[0].Annotations); got != 2 {
		t.Fatalf("annotations after repair: got %d, want 2", got)
	}
	for _, a := range data[0].Annotations {
		if a.Label == "dog" {
			t.Error("rejected annotation was not deleted")
		}
		if a.Coords[0] < 0 || a.Coords[1] < 0 || a.Coords[2] > 100 || a.Coords[3] > 100 {
			t.Errorf("annotation %q still out of bounds: %v", a.Label, a.Coords)
		}
	}
}

func TestRepairBboxesSkipsUnknownImageSize(t *testing.T) {
	data := AnnotatedFiles{
		{
			FilePath: "a.jpg",
			Annotations: []Annotation{
				{Coords: [4]float64{-5, 10, 20, 30}, Label: "dog"},
			},
		},
	}

	stats := data.RepairBboxes(1, 1.2)
	if stats != (RepairStats{}) {
		t.Errorf("stats = %+v, want all zero", stats)
	}
	if len(data[0].Annotations) != 1 {
		t.Error("annotations of a file with unknown size must be left untouched")
	}
}
