package annoconv

// COCO object detection (instances) specific functionality.

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
)

// COCOImage describes a single image entry in a COCO dataset.
type COCOImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// COCOAnnotation is a single object annotation in a COCO dataset. Bbox is
// [x, y, width, height] with the origin at the top-left corner.
type COCOAnnotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	Bbox       [4]float64 `json:"bbox"`
	Area       float64    `json:"area,omitempty"`
	IsCrowd    int        `json:"iscrowd"`
}

// COCOCategory is a single category entry in a COCO dataset.
type COCOCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// COCODataset defines the COCO instances annotation structure.
type COCODataset struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// FromCOCO reads and parses a COCO instances file at path and matches the
// image entries to the files in imageDir.
//
// Images whose file does not exist in imageDir are skipped. Images without
// annotations are kept with an empty annotation list.
func FromCOCO(path, imageDir string) ([]AnnotatedFile, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var coco COCODataset
	if err := json.Unmarshal(enc, &coco); err != nil {
		return nil, fmt.Errorf("failed to parse COCO input from %q: %v", path, err)
	}
	log.Printf("Parsed %d images and %d annotations from %q",
		len(coco.Images), len(coco.Annotations), path)

	catIDToName := make(map[int]string, len(coco.Categories))
	for _, cat := range coco.Categories {
		catIDToName[cat.ID] = cat.Name
	}

	// Group the annotations by image id.
	imgToAnns := make(map[int][]COCOAnnotation, len(coco.Images))
	for _, ann := range coco.Annotations {
		imgToAnns[ann.ImageID] = append(imgToAnns[ann.ImageID], ann)
	}

	// Convert to the intermediate representation.
	data := make([]AnnotatedFile, 0, len(coco.Images))
	numSkipped := 0
	for _, img := range coco.Images {
		imagePath := filepath.Join(imageDir, img.FileName)
		if _, err := os.Stat(imagePath); err != nil {
			numSkipped++
			continue
		}

		anns := imgToAnns[img.ID]
		fileData := AnnotatedFile{
			Annotations: make([]Annotation, 0, len(anns)),
			FilePath:    imagePath,
			Width:       img.Width,
			Height:      img.Height,
		}
		for _, ann := range anns {
			name, known := catIDToName[ann.CategoryID]
			if !known {
				log.Printf("Unknown category id %d in %q, skipping annotation",
					ann.CategoryID, img.FileName)
				continue
			}
			fileData.Annotations = append(fileData.Annotations, Annotation{
				Coords: [4]float64{
					ann.Bbox[0],
					ann.Bbox[1],
					ann.Bbox[0] + ann.Bbox[2],
					ann.Bbox[1] + ann.Bbox[3],
				},
				Label:      name,
				CategoryID: ann.CategoryID,
			})
		}

		data = append(data, fileData)
	}
	if numSkipped > 0 {
		log.Printf("Skipped %d images that were not found in %q", numSkipped, imageDir)
	}

	return data, nil
}

// ToCOCO converts the intermediate representation to a COCO dataset.
//
// Image and annotation ids are assigned sequentially from 1. The category
// table is rebuilt from the labels in first-seen order. Image sizes that are
// unknown in the IR are probed from the image files; files whose size cannot
// be determined are skipped.
func ToCOCO(data []AnnotatedFile) COCODataset {
	classes := CollectClasses(data)
	coco := COCODataset{
		Images:      make([]COCOImage, 0, len(data)),
		Annotations: make([]COCOAnnotation, 0, len(data)),
		Categories:  make([]COCOCategory, len(classes)),
	}

	nameToCatID := make(map[string]int, len(classes))
	for i, name := range classes {
		coco.Categories[i] = COCOCategory{ID: i + 1, Name: name}
		nameToCatID[name] = i + 1
	}

	annID := 1
	for _, fileData := range data {
		width, height := fileData.Width, fileData.Height
		if width <= 0 || height <= 0 {
			img, _, err := decodeImageConfig(fileData.FilePath)
			if err != nil {
				log.Printf("Cannot determine the image size, skipping %q: %v",
					fileData.FilePath, err)
				continue
			}
			width, height = img.Width, img.Height
		}

		imageID := len(coco.Images) + 1
		coco.Images = append(coco.Images, COCOImage{
			ID:       imageID,
			FileName: filepath.Base(fileData.FilePath),
			Width:    width,
			Height:   height,
		})

		for _, a := range fileData.Annotations {
			w := a.Width()
			h := a.Height()
			coco.Annotations = append(coco.Annotations, COCOAnnotation{
				ID:         annID,
				ImageID:    imageID,
				CategoryID: nameToCatID[a.Label],
				Bbox:       [4]float64{a.Coords[0], a.Coords[1], w, h},
				Area:       w * h,
			})
			annID++
		}
	}

	return coco
}

// WriteCOCO writes the COCO dataset to outFile.
func WriteCOCO(outFile string, coco COCODataset) error {
	enc, err := json.MarshalIndent(coco, "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(outFile, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", outFile, err)
	}
	return nil
}
