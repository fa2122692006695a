package annoconv

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

// writeTestImage creates a uniform gray image of the given size at path. The
// encoding follows the file extension (.png or .jpg).
func writeTestImage(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, gray)
		}
	}

	if err := saveImage(path, img, 90); err != nil {
		t.Fatalf("failed to write test image %q: %v", path, err)
	}
}

// testDataset builds a two-image dataset backed by real image files in dir.
func testDataset(t *testing.T, dir string) AnnotatedFiles {
	t.Helper()

	img1 := filepath.Join(dir, "img_001.png")
	img2 := filepath.Join(dir, "img_002.png")
	writeTestImage(t, img1, 100, 80)
	writeTestImage(t, img2, 64, 64)

	return AnnotatedFiles{
		{
			FilePath: img1,
			Width:    100,
			Height:   80,
			Annotations: []Annotation{
				{Coords: [4]float64{10, 10, 40, 50}, Label: "cat"},
				{Coords: [4]float64{50, 20, 90, 70}, Label: "dog"},
			},
		},
		{
			FilePath: img2,
			Width:    64,
			Height:   64,
			Annotations: []Annotation{
				{Coords: [4]float64{8, 8, 32, 32}, Label: "cat"},
			},
		},
	}
}

func coordsClose(a, b [4]float64, tol float64) bool {
	for i := range a {
		d := a[i] - b[i]
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}
