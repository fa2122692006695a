package annoconv

// Pascal VOC specific functionality.
//
// The on-disk layout matches the common VOC-style conversion output:
//
//	<dir>/images/     symlinks (or copies) of the source images
//	<dir>/labels/     one XML annotation file per image
//	<dir>/classes.txt the class names, one per line
//	<dir>/train.txt   the image base names without extension

import (
	"encoding/xml"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
)

// VOCBndBox is an axis-aligned bounding box in corner coordinates.
type VOCBndBox struct {
	Xmin int `xml:"xmin"`
	Ymin int `xml:"ymin"`
	Xmax int `xml:"xmax"`
	Ymax int `xml:"ymax"`
}

// VOCObject is a single object annotation within a Pascal VOC file.
type VOCObject struct {
	Name   string    `xml:"name"`
	BndBox VOCBndBox `xml:"bndbox"`
}

// VOCSource describes the dataset an annotation originates from.
type VOCSource struct {
	Database string `xml:"database"`
}

// VOCSize is the pixel size of the annotated image.
type VOCSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// VOCAnnotation defines the Pascal VOC annotation structure for a single
// image.
type VOCAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Folder   string      `xml:"folder"`
	Filename string      `xml:"filename"`
	Path     string      `xml:"path"`
	Source   VOCSource   `xml:"source"`
	Size     VOCSize     `xml:"size"`
	Objects  []VOCObject `xml:"object"`
}

const (
	vocImageDir  = "images"
	vocLabelDir  = "labels"
	vocClassFile = "classes.txt"
	vocSetFile   = "train.txt"
)

// vocDatabase is written to the source/database element of generated files.
const vocDatabase = "annoconv"

// FromPascalVOC reads and parses the Pascal VOC annotations under dir.
//
// The image set is taken from train.txt; entries without an XML annotation
// file are kept with an empty annotation list.
func FromPascalVOC(dir string) ([]AnnotatedFile, error) {
	names, err := readLines(filepath.Join(dir, vocSetFile))
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing Pascal VOC labels for %d files", len(names))

	// Map image base names to their file extensions.
	imageFiles, err := filesByExtInDir(filepath.Join(dir, vocImageDir), "")
	if err != nil {
		return nil, err
	}
	imageNamesToExt := mapFileNamesToExtensions(imageFiles)

	data := make([]AnnotatedFile, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		imageExt, found := imageNamesToExt[name]
		if !found {
			log.Printf("No corresponding image file, skipping %q", name)
			continue
		}
		imagePath := filepath.Join(dir, vocImageDir, name+"."+imageExt)

		fileData := AnnotatedFile{FilePath: imagePath}

		xmlPath := filepath.Join(dir, vocLabelDir, name+".xml")
		enc, err := ioutil.ReadFile(xmlPath)
		if os.IsNotExist(err) {
			// An image without objects has no annotation file.
			data = append(data, fileData)
			continue
		} else if err != nil {
			return nil, err
		}

		var voc VOCAnnotation
		if err := xml.Unmarshal(enc, &voc); err != nil {
			return nil, fmt.Errorf("failed to parse VOC input from %q: %v", xmlPath, err)
		}

		fileData.Width = voc.Size.Width
		fileData.Height = voc.Size.Height
		fileData.Annotations = make([]Annotation, len(voc.Objects))
		for i, obj := range voc.Objects {
			fileData.Annotations[i] = Annotation{
				Coords: [4]float64{
					float64(obj.BndBox.Xmin),
					float64(obj.BndBox.Ymin),
					float64(obj.BndBox.Xmax),
					float64(obj.BndBox.Ymax),
				},
				Label: obj.Name,
			}
		}

		data = append(data, fileData)
	}

	return data, nil
}

// ToPascalVOC converts the intermediate representation for a single file to
// a Pascal VOC annotation. Corner coordinates are truncated to integers.
func ToPascalVOC(fileData AnnotatedFile, imagePath string) VOCAnnotation {
	voc := VOCAnnotation{
		Folder:   vocImageDir,
		Filename: filepath.Base(fileData.FilePath),
		Path:     imagePath,
		Source:   VOCSource{Database: vocDatabase},
		Size:     VOCSize{Width: fileData.Width, Height: fileData.Height, Depth: 3},
		Objects:  make([]VOCObject, len(fileData.Annotations)),
	}
	for i, a := range fileData.Annotations {
		voc.Objects[i] = VOCObject{
			Name: a.Label,
			BndBox: VOCBndBox{
				Xmin: int(a.Coords[0]),
				Ymin: int(a.Coords[1]),
				Xmax: int(a.Coords[2]),
				Ymax: int(a.Coords[3]),
			},
		}
	}
	return voc
}

// WritePascalVOC writes the data as a Pascal VOC dataset under outDir,
// creating the directory structure as needed.
//
// Source images are symlinked (with a copy fallback) into images/. Image
// sizes that are unknown in the IR are probed from the image files; files
// whose size cannot be determined are skipped.
func WritePascalVOC(outDir string, data []AnnotatedFile) error {
	for _, d := range []string{
		outDir,
		filepath.Join(outDir, vocImageDir),
		filepath.Join(outDir, vocLabelDir),
	} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}

	if err := writeLines(filepath.Join(outDir, vocClassFile), CollectClasses(data)); err != nil {
		return err
	}

	imageSet := make([]string, 0, len(data))
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
		imagePath := filepath.Join(outDir, vocImageDir, baseNoExt+"."+ext)
		if err := symlinkOrCopy(fileData.FilePath, imagePath); err != nil {
			return fmt.Errorf("cannot place image %q: %v", imagePath, err)
		}
		imageSet = append(imageSet, baseNoExt)

		voc := ToPascalVOC(fileData, imagePath)
		enc, err := xml.MarshalIndent(voc, "", "  ")
		if err != nil {
			return err
		}
		enc = append([]byte(xml.Header), enc...)

		xmlPath := filepath.Join(outDir, vocLabelDir, baseNoExt+".xml")
		if err := ioutil.WriteFile(xmlPath, enc, 0644); err != nil {
			return fmt.Errorf("cannot write file %q: %v", xmlPath, err)
		}
	}

	return writeLines(filepath.Join(outDir, vocSetFile), imageSet)
}
