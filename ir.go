package annoconv

// The intermediate annotation representation that all format conversions pass
// through.

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"
)

// Annotation is the intermediate representation of a single object label.
type Annotation struct {
	Coords     [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label      string
	CategoryID int // The category id in the source dataset, if it has one.
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// AnnotatedFile is the intermediate representation of one annotated image.
//
// Width and Height are the image pixel size when the source format supplies
// it (COCO, Pascal VOC) or when it has been probed from the image file; zero
// means unknown.
type AnnotatedFile struct {
	Annotations []Annotation
	FilePath    string // The annotated image.
	Width       int
	Height      int
}

// AnnotatedFiles is the annotation metadata for a list of images.
type AnnotatedFiles []AnnotatedFile

// deleteAnnotation removes the annotation at index i, swapping in the last
// element. Order is not preserved.
func deleteAnnotation(annotations []Annotation, i int) []Annotation {
	l := len(annotations)
	annotations[i] = annotations[l-1]
	return annotations[:l-1]
}

// CollectClasses returns the unique annotation labels in first-seen order.
func CollectClasses(data AnnotatedFiles) []string {
	seen := make(map[string]bool)
	var classes []string
	for _, f := range data {
		for _, a := range f.Annotations {
			if !seen[a.Label] {
				seen[a.Label] = true
				classes = append(classes, a.Label)
			}
		}
	}
	return classes
}

// MapLabels replaces label (sub-)strings with substitution values, as
// specified in mappings. The format of mappings is old=new.
func (data *AnnotatedFiles) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		parts := strings.Split(v, "=")
		if len(parts) != 2 {
			return fmt.Errorf("invalid mapping: %v", v)
		}
		replacements[i].old = parts[0]
		replacements[i].new = parts[1]
	}

	count := 0
	for _, f := range *data {
		for i := range f.Annotations {
			a := &f.Annotations[i]

			oldLabel := a.Label
			for _, r := range replacements {
				a.Label = strings.Replace(a.Label, r.old, r.new, -1)
			}
			if a.Label != oldLabel {
				count++
			}
		}
	}

	log.Printf("The label mappings changed %d labels", count)
	return nil
}

// Filter deletes annotations that do not match any of the given labelNames
// (an empty list keeps all) or whose bounding box is smaller than
// minBboxWidth or minBboxHeight.
//
// If requireLabel is true, files left with no annotations are deleted as well.
func (data *AnnotatedFiles) Filter(labelNames []string, minBboxWidth, minBboxHeight float64,
		requireLabel bool) {

	inList := func(v string, l []string) bool {
		for _, val := range l {
			if val == v {
				return true
			}
		}
		return false
	}

	numFiles := len(*data)
	numLabelsBefore := 0
	numLabelsAfter := 0

	for dataIdx, dataLen := 0, len(*data); dataIdx < dataLen; dataIdx++ {
		f := &(*data)[dataIdx]
		numLabelsBefore += len(f.Annotations)

		for i, aLen := 0, len(f.Annotations); i < aLen; i++ {
			a := &f.Annotations[i]

			if a.Width() < minBboxWidth || a.Height() < minBboxHeight ||
					(len(labelNames) > 0 && !inList(a.Label, labelNames)) {
				f.Annotations = deleteAnnotation(f.Annotations, i)
				aLen--
				i--
			}
		}

		numLabelsAfter += len(f.Annotations)

		// Delete the file annotation if files with no labels are filtered out.
		if requireLabel && len(f.Annotations) == 0 {
			dataLen--
			(*data)[dataIdx] = (*data)[dataLen]
			*data = (*data)[0:dataLen]
			dataIdx--
		}
	}

	log.Printf("Filtered out %d labels and %d files",
		numLabelsBefore-numLabelsAfter, numFiles-len(*data))
}

// Split randomly splits the data into multiple datasets.
//
// The cumulativeSplits specify the cumulative distribution according to which
// the data is split into the returned datasets. Its values must add up to 100.
func (data *AnnotatedFiles) Split(cumulativeSplits []int) ([]AnnotatedFiles, error) {
	datasets := make([]AnnotatedFiles, len(cumulativeSplits))

	// Allocate slightly more than the expected size for each dataset.
	var sum int
	for i, s := range cumulativeSplits {
		percent := s - sum
		datasets[i] = make(AnnotatedFiles, 0, int(1.05*float64(percent)/100*float64(len(*data))))
		sum = s
	}
	if sum != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

outer:
	for _, f := range *data {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				datasets[i] = append(datasets[i], f)
				continue outer
			}
		}
	}

	return datasets, nil
}
