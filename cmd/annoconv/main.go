// Converts object-detection annotations between COCO JSON, Pascal VOC XML,
// YOLO text and TFRecord dataset formats, validates and repairs bounding
// boxes, and renders annotated images for visual inspection.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/detkit/annoconv"
)

var (
	convertFrom format // The source format.
	convertTo   format // The target format.

	imageDirPath    string   // The input directory with the labelled images (coco).
	labelPath       string   // The input label file (coco) or dataset directory (voc, yolo).
	outPaths        []string // The output file(s) (coco, tfrecord) or dataset dir (voc, yolo).
	outSplits       []int    // The cumulative split percentages for the output datasets.
	subsetNames     []string // The subset names per split (yolo).
	yoloSubset      string   // The input subset to read (yolo).
	labelMapPath    string   // The TFRecord label map output file.
	numShardFiles   int      // The number of TFRecord shard files to create.
	renderDirPath   string   // The output directory for annotated images (empty disables).
	jpegQuality     int      // The JPEG quality for rendered outputs.
	runCheck        bool     // Print the annotation integrity report.
	checkOnly       bool     // Print the report and exit without converting.

	labelMappings string // A comma-separated string of label mappings.

	filterLabels        string  // A comma-separated string of labels to keep (empty keeps all).
	filterRequireLabel  bool    // Filter out files with no labels (after other filters).
	filterMinBboxWidth  float64 // The minimum bounding box width.
	filterMinBboxHeight float64 // The minimum bounding box height.

	noRepair        bool    // Disable bbox validation and repair.
	repairMinArea   float64 // The minimum bbox area enforced by the repair step.
	repairExpansion float64 // The headroom factor for minimum-area repairs.
)

type format int

// The known label formats.
const (
	Unknown format = iota
	COCO
	PascalVOC
	YOLO
	TFRecord
)

func formatFrom(s string) format {
	switch s {
	case "coco":
		return COCO
	case "voc":
		return PascalVOC
	case "yolo":
		return YOLO
	case "tfrecord":
		return TFRecord
	}
	return Unknown
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  coco input options:\t\t-labels <file> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  coco output options:\t\t-out <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  voc input options:\t\t-labels <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  voc output options:\t\t-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo input options:\t\t-labels <dir> [-subset]")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo output options:\t\t-out <dir> [-subsets]")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-out <file> -label-map-out"+
				" [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Format arguments.
	from := flag.String("from", "", "The source `format` {coco, voc, yolo}")
	to := flag.String("to", "", "The target `format` {coco, voc, yolo, tfrecord}")

	// Path arguments.
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory (coco input only; voc and yolo datasets"+
				" carry their own images)")
	flag.StringVar(&labelPath, "labels", labelPath,
		"The `path` to the label input file (coco) or dataset directory (voc, yolo)")
	out := flag.String("out", "",
		"The comma-separated paths (`path[,...]`) to the output files (coco, tfrecord),"+
				" one per value in flag -split, or a single dataset directory (voc, yolo)")
	outSplitsArg := flag.String("split", "100",
		"The comma-separated output split percentages (`percent[,...]`) to divide the dataset"+
				" into; must add up to 100%")
	subsets := flag.String("subsets", "train",
		"The comma-separated subset `names` for yolo output; one per value in flag -split")
	flag.StringVar(&yoloSubset, "subset", "train",
		"The dataset subset `name` to read for yolo input")
	flag.StringVar(&labelMapPath, "label-map-out", labelMapPath,
		"The label map output file `path` (tfrecord only)")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")

	// Conversion and transformation arguments.
	flag.StringVar(&labelMappings, "map-labels", labelMappings,
		"Comma-separated list of old=new label (sub-)string replacements")

	// Filter arguments.
	flag.StringVar(&filterLabels, "filter-labels", filterLabels,
		"Comma-separated list of labels to keep (after map-labels; empty string keeps all)")
	flag.BoolVar(&filterRequireLabel, "require-label", filterRequireLabel,
		"Require at least one label (after filters) to keep the file")
	flag.Float64Var(&filterMinBboxWidth, "min-bbox-width", filterMinBboxWidth,
		"The min. required width in `pixels` for object bounding boxes")
	flag.Float64Var(&filterMinBboxHeight, "min-bbox-height", filterMinBboxHeight,
		"The min. required height in `pixels` for object bounding boxes")

	// Bbox repair arguments.
	flag.BoolVar(&noRepair, "no-repair", noRepair,
		"Disable bounding box validation and repair")
	flag.Float64Var(&repairMinArea, "min-bbox-area", 1,
		"The minimum `area` in square pixels enforced when repairing bounding boxes")
	flag.Float64Var(&repairExpansion, "repair-expansion", 1.2,
		"The `factor` by which minimum-area repairs overshoot the threshold")

	// Inspection arguments.
	flag.BoolVar(&runCheck, "check", runCheck,
		"Print an annotation integrity report for the input before converting")
	flag.BoolVar(&checkOnly, "check-only", checkOnly,
		"Print the annotation integrity report and exit")
	flag.StringVar(&renderDirPath, "render", renderDirPath,
		"The `path` to a directory to write annotated image copies to (empty disables)")
	flag.IntVar(&jpegQuality, "jpeg-quality", 90,
		"The quality to use when encoding rendered JPEGs [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	convertFrom = formatFrom(*from)
	convertTo = formatFrom(*to)

	// Validate the conversion direction.
	validInFormat := false
	for _, f := range []format{COCO, PascalVOC, YOLO} {
		if f == convertFrom {
			validInFormat = true
			break
		}
	}
	validOutFormat := convertTo != Unknown
	if !validInFormat {
		printUsageAndExit("Unsupported input format")
	} else if !validOutFormat && !checkOnly && renderDirPath == "" {
		printUsageAndExit("Unsupported output format")
	}

	// Validate input arguments.
	if labelPath == "" || (convertFrom == COCO && imageDirPath == "") {
		printUsageAndExit("Missing label or image input path argument")
	}

	// Validate output split arguments.
	outPaths = strings.Split(*out, ",")
	splits := strings.Split(*outSplitsArg, ",")
	subsetNames = strings.Split(*subsets, ",")
	switch convertTo {
	case COCO, TFRecord:
		if len(splits) != len(outPaths) {
			printUsageAndExit("The number of output datasets defined by -split and the number" +
					" of paths in -out must match")
		}
	case YOLO:
		if len(outPaths) != 1 {
			printUsageAndExit("Output format \"yolo\" takes a single -out directory")
		}
		if len(splits) != len(subsetNames) {
			printUsageAndExit("The number of output datasets defined by -split and the number" +
					" of names in -subsets must match")
		}
	case PascalVOC:
		if len(splits) > 1 || len(outPaths) != 1 {
			printUsageAndExit("Argument -split is not supported with output format \"voc\"")
		}
	}

	// Parse splits as cumulative int percentages.
	var splitSum int
	for _, v := range splits {
		if i, err := strconv.Atoi(v); err != nil || i < 0 || i > 100 {
			printUsageAndExit("Invalid value in -split: ", v)
		} else {
			splitSum += i
			outSplits = append(outSplits, splitSum)
		}
	}
	if splitSum != 100 {
		printUsageAndExit("The values in -split must add up to 100%")
	}

	// Validate other output arguments.
	if convertTo == TFRecord && labelMapPath == "" {
		printUsageAndExit("Missing label map output path argument")
	}

	// Validate repair arguments.
	if repairMinArea < 0 {
		printUsageAndExit("Invalid value for -min-bbox-area, must be >= 0")
	}
	if repairExpansion < 1 {
		printUsageAndExit("Invalid value for -repair-expansion, must be >= 1.0")
	}

	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 90
		log.Print("Invalid JPEG quality, setting it to ", jpegQuality)
	}

	// Clean path arguments.
	if imageDirPath != "" {
		imageDirPath = filepath.Clean(imageDirPath)
	}
	labelPath = filepath.Clean(labelPath)
	for i, v := range outPaths {
		if v == "" {
			continue
		}
		outPaths[i] = filepath.Clean(v)
		if labelPath == outPaths[i] {
			printUsageAndExit("The label input and output paths cannot be identical")
		}
	}
}

func main() {
	// Parse input.
	var data []annoconv.AnnotatedFile
	var err error
	switch convertFrom {
	case COCO:
		data, err = annoconv.FromCOCO(labelPath, imageDirPath)
	case PascalVOC:
		data, err = annoconv.FromPascalVOC(labelPath)
	case YOLO:
		data, err = annoconv.FromYOLO(labelPath, yoloSubset)
	default:
		err = fmt.Errorf("unsupported input format")
	}
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}

	af := annoconv.AnnotatedFiles(data)

	// Report annotation integrity problems on request.
	if runCheck || checkOnly {
		report := annoconv.CheckDataset(af)
		report.Print(os.Stdout)
		if checkOnly {
			return
		}
	}

	// Map labels.
	if len(labelMappings) > 0 {
		if err := af.MapLabels(strings.Split(labelMappings, ",")); err != nil {
			log.Fatal("Failed to map labels: ", err)
		}
	}

	// Apply filters.
	var labelNames []string
	if filterLabels != "" {
		labelNames = strings.Split(filterLabels, ",")
	}
	if labelNames != nil || filterMinBboxWidth > 0 || filterMinBboxHeight > 0 ||
			filterRequireLabel {
		af.Filter(labelNames, filterMinBboxWidth, filterMinBboxHeight, filterRequireLabel)
	}

	// Validate and repair the bounding boxes.
	if !noRepair {
		af.RepairBboxes(repairMinArea, repairExpansion)
	}

	classes := annoconv.CollectClasses(af)

	// Split data into output datasets.
	var datasets []annoconv.AnnotatedFiles
	if len(outSplits) == 1 {
		datasets = []annoconv.AnnotatedFiles{af}
	} else {
		if datasets, err = af.Split(outSplits); err != nil {
			log.Fatal("Failed to split the dataset: ", err)
		}
	}

	// Write output datasets.
	for i, data := range datasets {
		var outPath string
		switch convertTo {
		case COCO:
			outPath = outPaths[i]
			err = annoconv.WriteCOCO(outPath, annoconv.ToCOCO(data))
		case PascalVOC:
			outPath = outPaths[0]
			err = annoconv.WritePascalVOC(outPath, data)
		case YOLO:
			outPath = outPaths[0]
			err = annoconv.WriteYOLO(outPath, subsetNames[i], data, classes)
		case TFRecord:
			outPath = outPaths[i]
			err = annoconv.WriteTFRecord(outPath, labelMapPath, data, classes, numShardFiles)
		default:
			continue
		}
		if err != nil {
			log.Fatal("Conversion failed: ", err)
		}

		log.Printf("Successfully wrote labels for %d files to %s", len(data), outPath)
	}

	// Render annotated copies for visual inspection.
	if renderDirPath != "" {
		opts := annoconv.RenderOptions{JPEGQuality: jpegQuality}
		if err := annoconv.RenderAnnotations(af, renderDirPath, opts); err != nil {
			log.Fatal("Rendering failed: ", err)
		}
	}

	log.Print("Total number of labelled files: ", len(af))
}
