package annoconv

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestYOLOCoordinateConversion(t *testing.T) {
	tests := []struct {
		coords         [4]float64
		imgW, imgH     int
		cx, cy, w, h   float64
	}{
		{[4]float64{0, 0, 100, 80}, 100, 80, 0.5, 0.5, 1, 1},
		{[4]float64{25, 20, 75, 60}, 100, 80, 0.5, 0.5, 0.5, 0.5},
		{[4]float64{10, 10, 40, 50}, 100, 80, 0.25, 0.375, 0.3, 0.5},
	}

	for _, tt := range tests {
		cx, cy, w, h := yoloFromCorners(tt.coords, tt.imgW, tt.imgH)
		for _, v := range []struct{ got, want float64 }{
			{cx, tt.cx}, {cy, tt.cy}, {w, tt.w}, {h, tt.h},
		} {
			if math.Abs(v.got-v.want) > 1e-9 {
				t.Errorf("yoloFromCorners(%v) = (%g %g %g %g), want (%g %g %g %g)",
					tt.coords, cx, cy, w, h, tt.cx, tt.cy, tt.w, tt.h)
				break
			}
		}

		back := yoloToCorners(cx, cy, w, h, tt.imgW, tt.imgH)
		if !coordsClose(back, tt.coords, 1e-9) {
			t.Errorf("yoloToCorners round trip: got %v, want %v", back, tt.coords)
		}
	}
}

func TestYOLORoundtrip(t *testing.T) {
	srcDir := t.TempDir()
	data := testDataset(t, srcDir)
	classes := CollectClasses(data)

	outDir := filepath.Join(t.TempDir(), "yolo")
	if err := WriteYOLO(outDir, "train", data, classes); err != nil {
		t.Fatalf("WriteYOLO failed: %v", err)
	}

	for _, p := range []string{
		filepath.Join(outDir, "images", "train", "img_001.png"),
		filepath.Join(outDir, "labels", "train", "img_001.txt"),
		filepath.Join(outDir, "classes.txt"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output file %q: %v", p, err)
		}
	}

	lines, err := readLines(filepath.Join(outDir, "labels", "train", "img_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("label lines: got %d, want 2", len(lines))
	}
	if want := "0 0.250000 0.375000 0.300000 0.500000"; lines[0] != want {
		t.Errorf("label line: got %q, want %q", lines[0], want)
	}

	parsed, err := FromYOLO(outDir, "train")
	if err != nil {
		t.Fatalf("FromYOLO failed: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("files after roundtrip: got %d, want 2", len(parsed))
	}

	// Normalisation truncates to 6 decimals, so allow a small tolerance.
	byBase := make(map[string]AnnotatedFile, len(parsed))
	for _, f := range parsed {
		byBase[filepath.Base(f.FilePath)] = f
	}
	f, ok := byBase["img_001.png"]
	if !ok {
		t.Fatal("img_001.png missing after roundtrip")
	}
	if f.Width != 100 || f.Height != 80 {
		t.Errorf("probed image size: got %dx%d, want 100x80", f.Width, f.Height)
	}
	if len(f.Annotations) != 2 {
		t.Fatalf("annotations: got %d, want 2", len(f.Annotations))
	}
	if !coordsClose(f.Annotations[0].Coords, data[0].Annotations[0].Coords, 1e-3) {
		t.Errorf("coords after roundtrip: got %v, want %v",
			f.Annotations[0].Coords, data[0].Annotations[0].Coords)
	}
	if f.Annotations[0].Label != "cat" {
		t.Errorf("label: got %q, want cat", f.Annotations[0].Label)
	}
}

func TestWriteYOLODropsUnknownLabels(t *testing.T) {
	srcDir := t.TempDir()
	data := testDataset(t, srcDir)

	outDir := filepath.Join(t.TempDir(), "yolo")
	// The class list omits "dog", so its annotation must be dropped.
	if err := WriteYOLO(outDir, "train", data, []string{"cat"}); err != nil {
		t.Fatalf("WriteYOLO failed: %v", err)
	}

	lines, err := readLines(filepath.Join(outDir, "labels", "train", "img_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Errorf("label lines: got %d, want 1", len(lines))
	}
}

func TestParseYOLOAnnotationErrors(t *testing.T) {
	classes := []string{"cat"}

	tests := []struct {
		name string
		line string
	}{
		{"too few tokens", "0 0.5 0.5 0.1"},
		{"class index out of range", "1 0.5 0.5 0.1 0.1"},
		{"non-numeric value", "0 0.5 abc 0.1 0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseYOLOAnnotation(tt.line, classes, 100, 100); err == nil {
				t.Errorf("parseYOLOAnnotation(%q) did not fail", tt.line)
			}
		})
	}
}
