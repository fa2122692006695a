package annoconv

// Dataset integrity checking.

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CheckFinding describes the problems found for a single annotation.
type CheckFinding struct {
	Label    string
	Bbox     [4]float64 // x, y, width, height.
	Problems []string
}

// CheckReport is the result of validating every annotation in a dataset.
type CheckReport struct {
	FindingsByImage map[string][]CheckFinding
	imageOrder      []string // Images with findings, in dataset order.

	TotalAnnotations int
	TotalErrors      int // Annotations with at least one problem.

	// Box area distribution over all annotations.
	AreaMean   float64
	AreaMedian float64
}

// checkBbox validates a single bbox (x, y, width, height) against the image
// size and returns a description of each problem found. A valid bbox yields
// nil.
func checkBbox(x, y, w, h float64, imgWidth, imgHeight int) []string {
	var problems []string
	fw := float64(imgWidth)
	fh := float64(imgHeight)

	if x < 0 || y < 0 {
		problems = append(problems, fmt.Sprintf("negative coordinates: (%g, %g)", x, y))
	}
	if w <= 0 || h <= 0 {
		problems = append(problems, fmt.Sprintf("invalid dimensions: width=%g, height=%g", w, h))
	}
	if x >= fw || x+w > fw {
		problems = append(problems,
			fmt.Sprintf("x-coordinates (%g, %g) out of image width (%d)", x, x+w, imgWidth))
	}
	if y >= fh || y+h > fh {
		problems = append(problems,
			fmt.Sprintf("y-coordinates (%g, %g) out of image height (%d)", y, y+h, imgHeight))
	}
	if w*h < 1 {
		problems = append(problems, fmt.Sprintf("bounding box area too small: %g pixels", w*h))
	}

	return problems
}

// CheckDataset validates every annotation bounding box in data against its
// image size and collects the findings into a report.
//
// Files with an unknown image size are reported as a single finding, since
// their boxes cannot be checked.
func CheckDataset(data AnnotatedFiles) *CheckReport {
	report := &CheckReport{FindingsByImage: make(map[string][]CheckFinding)}

	addFinding := func(path string, f CheckFinding) {
		if _, seen := report.FindingsByImage[path]; !seen {
			report.imageOrder = append(report.imageOrder, path)
		}
		report.FindingsByImage[path] = append(report.FindingsByImage[path], f)
	}

	var areas []float64
	for _, fileData := range data {
		if fileData.Width <= 0 || fileData.Height <= 0 {
			addFinding(fileData.FilePath, CheckFinding{
				Problems: []string{"unknown image size, bboxes not checked"},
			})
			continue
		}

		for _, a := range fileData.Annotations {
			report.TotalAnnotations++
			w := a.Width()
			h := a.Height()
			areas = append(areas, w*h)

			problems := checkBbox(a.Coords[0], a.Coords[1], w, h, fileData.Width, fileData.Height)
			if len(problems) == 0 {
				continue
			}
			report.TotalErrors++
			addFinding(fileData.FilePath, CheckFinding{
				Label:    a.Label,
				Bbox:     [4]float64{a.Coords[0], a.Coords[1], w, h},
				Problems: problems,
			})
		}
	}

	if len(areas) > 0 {
		report.AreaMean = stat.Mean(areas, nil)
		sort.Float64s(areas)
		report.AreaMedian = stat.Quantile(0.5, stat.Empirical, areas, nil)
	}

	return report
}

// Print writes the formatted error report to w.
func (r *CheckReport) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Annotation Error Report ===")
	fmt.Fprintf(w, "Total annotations checked: %d\n", r.TotalAnnotations)
	fmt.Fprintf(w, "Annotations with errors: %d\n", r.TotalErrors)
	fmt.Fprintf(w, "Images with errors: %d\n", len(r.FindingsByImage))
	if r.TotalAnnotations > 0 {
		fmt.Fprintf(w, "Bbox area: mean %.1f px, median %.1f px\n", r.AreaMean, r.AreaMedian)
	}

	for _, path := range r.imageOrder {
		fmt.Fprintf(w, "\nImage: %s\n", path)
		for i, finding := range r.FindingsByImage[path] {
			if finding.Label != "" {
				fmt.Fprintf(w, "  Object %d (%s):\n", i+1, finding.Label)
				fmt.Fprintf(w, "    Bbox: [%g %g %g %g]\n",
					finding.Bbox[0], finding.Bbox[1], finding.Bbox[2], finding.Bbox[3])
			} else {
				fmt.Fprintf(w, "  Object %d:\n", i+1)
			}
			for _, p := range finding.Problems {
				fmt.Fprintf(w, "    - %s\n", p)
			}
		}
	}
}
