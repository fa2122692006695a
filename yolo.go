package annoconv

// YOLO (darknet text) specific functionality.
//
// The on-disk layout is the usual YOLO dataset structure:
//
//	<dir>/images/<subset>/  the images
//	<dir>/labels/<subset>/  one label file per image
//	<dir>/classes.txt       the class names, one per line
//
// Each label line is "<class-index> <cx> <cy> <w> <h>" with center-based
// coordinates normalised to [0, 1] by the image size.

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const yoloClassFile = "classes.txt"

// yoloFromCorners converts absolute corner coordinates to normalised
// center-based YOLO coordinates.
func yoloFromCorners(coords [4]float64, imgWidth, imgHeight int) (cx, cy, w, h float64) {
	dw := 1 / float64(imgWidth)
	dh := 1 / float64(imgHeight)
	boxW := coords[2] - coords[0]
	boxH := coords[3] - coords[1]
	cx = (coords[0] + boxW/2) * dw
	cy = (coords[1] + boxH/2) * dh
	w = boxW * dw
	h = boxH * dh
	return cx, cy, w, h
}

// yoloToCorners converts normalised center-based YOLO coordinates to absolute
// corner coordinates.
func yoloToCorners(cx, cy, w, h float64, imgWidth, imgHeight int) [4]float64 {
	cx *= float64(imgWidth)
	cy *= float64(imgHeight)
	w *= float64(imgWidth)
	h *= float64(imgHeight)
	return [4]float64{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

// FromYOLO reads and parses the YOLO dataset subset (e.g. "train") under dir.
//
// The image size needed to denormalise the coordinates is probed from each
// image file.
func FromYOLO(dir, subset string) ([]AnnotatedFile, error) {
	classes, err := readLines(filepath.Join(dir, yoloClassFile))
	if err != nil {
		return nil, err
	}

	labelDir := filepath.Join(dir, "labels", subset)
	imageDir := filepath.Join(dir, "images", subset)

	parse := func(labelPath, imagePath string) (AnnotatedFile, error) {
		img, _, err := decodeImageConfig(imagePath)
		if err != nil {
			return AnnotatedFile{}, fmt.Errorf("failed to decode the image metadata: %v", err)
		}

		lines, err := readLines(labelPath)
		if err != nil {
			return AnnotatedFile{}, err
		}

		fileData := AnnotatedFile{
			Annotations: make([]Annotation, 0, len(lines)),
			FilePath:    imagePath,
			Width:       img.Width,
			Height:      img.Height,
		}
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			a, err := parseYOLOAnnotation(line, classes, img.Width, img.Height)
			if err != nil {
				return AnnotatedFile{}, err
			}
			fileData.Annotations = append(fileData.Annotations, a)
		}

		return fileData, nil
	}

	return parseLabelsWithOneToOneImages(labelDir, ".txt", imageDir, parse)
}

// parseYOLOAnnotation parses the line of values for a single annotation.
func parseYOLOAnnotation(line string, classes []string, imgWidth, imgHeight int) (
		Annotation, error) {

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return Annotation{}, fmt.Errorf("expected 5 tokens in %q", line)
	}

	classIdx, err := strconv.Atoi(tokens[0])
	if err != nil || classIdx < 0 || classIdx >= len(classes) {
		return Annotation{}, fmt.Errorf("invalid class index in %q", line)
	}

	var vals [4]float64
	for i := 1; i < 5 && err == nil; i++ {
		vals[i-1], err = strconv.ParseFloat(tokens[i], 64)
	}
	if err != nil {
		return Annotation{}, fmt.Errorf("unexpected values in %q: %v", line, err)
	}

	return Annotation{
		Coords:     yoloToCorners(vals[0], vals[1], vals[2], vals[3], imgWidth, imgHeight),
		Label:      classes[classIdx],
		CategoryID: classIdx,
	}, nil
}

// WriteYOLO writes the data as the YOLO dataset subset (e.g. "train") under
// outDir, creating the directory structure as needed.
//
// The class indices written to the label files are the indices into classes;
// annotations with a label that is not in classes are dropped. Source images
// are copied into images/<subset>/. Image sizes that are unknown in the IR
// are probed from the image files; files whose size cannot be determined are
// skipped.
func WriteYOLO(outDir, subset string, data []AnnotatedFile, classes []string) error {
	imageDir := filepath.Join(outDir, "images", subset)
	labelDir := filepath.Join(outDir, "labels", subset)
	for _, d := range []string{imageDir, labelDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}

	if err := writeLines(filepath.Join(outDir, yoloClassFile), classes); err != nil {
		return err
	}

	classIdx := make(map[string]int, len(classes))
	for i, name := range classes {
		classIdx[name] = i
	}

	for _, fileData := range data {
		if fileData.Width <= 0 || fileData.Height <= 0 {
			img, _, err := decodeImageConfig(fileData.FilePath)
			if err != nil {
				log.Printf("Cannot determine the image size, skipping %q: %v",
					fileData.FilePath, err)
				continue
			}
			fileData.Width, fileData.Height = img.Width, img.Height
		}

		_, baseNoExt, ext, err := splitPath(fileData.FilePath)
		if err != nil {
			return err
		}

		// Write the label file.
		labelPath := filepath.Join(labelDir, baseNoExt+".txt")
		file, err := os.Create(labelPath)
		if err != nil {
			return err
		}
		for _, a := range fileData.Annotations {
			idx, known := classIdx[a.Label]
			if !known {
				log.Printf("Label %q is not in the class list, dropping annotation", a.Label)
				continue
			}
			cx, cy, w, h := yoloFromCorners(a.Coords, fileData.Width, fileData.Height)
			if _, err := fmt.Fprintf(file, "%d %.6f %.6f %.6f %.6f\n", idx, cx, cy, w, h); err != nil {
				file.Close()
				return err
			}
		}
		if err := file.Close(); err != nil {
			return err
		}

		// Place the image next to it.
		imagePath := filepath.Join(imageDir, baseNoExt+"."+ext)
		if err := copyFile(fileData.FilePath, imagePath); err != nil {
			return fmt.Errorf("cannot place image %q: %v", imagePath, err)
		}
	}

	return nil
}
