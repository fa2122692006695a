package annoconv

// Rendering of annotated images for visual inspection.
//
// Instead of opening an interactive window, annotated copies of the images
// are written to a directory so they can be inspected with any image viewer.

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderOptions control the annotation overlays.
type RenderOptions struct {
	LineWidth   int // Bbox outline width in pixels. Defaults to 2.
	JPEGQuality int // Quality for JPEG outputs. Defaults to 90.
}

// classPalette assigns each class a deterministic, visually distinct color.
// Hues are spaced by the golden angle so neighbouring class indices differ.
func classPalette(classes []string) map[string]color.NRGBA {
	palette := make(map[string]color.NRGBA, len(classes))
	for i, name := range classes {
		hue := float64(i) * 137.508
		for hue >= 360 {
			hue -= 360
		}
		r, g, b := colorful.Hsv(hue, 0.75, 0.95).RGB255()
		palette[name] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}

// RenderAnnotations draws the bounding boxes and class labels of each
// annotated file onto a copy of its image and saves the copies to outDir
// under the source file names.
//
// Images are processed concurrently. The first error encountered is returned
// after all workers have finished; files that fail to load are logged and
// skipped.
func RenderAnnotations(data []AnnotatedFile, outDir string, opts RenderOptions) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	if opts.LineWidth <= 0 {
		opts.LineWidth = 2
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}
	log.Printf("Rendering %d annotated images to %q", len(data), outDir)

	palette := classPalette(CollectClasses(data))

	// Limit the number of goroutines in flight, as they load potentially
	// large images into memory.
	numTasks := 2 * runtime.NumCPU()
	if len(data) < numTasks {
		numTasks = len(data)
	}
	workQueue := make(chan *AnnotatedFile, 2*numTasks)
	errors := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for d := range workQueue {
				if err := renderFile(d, outDir, palette, opts); err != nil {
					select {
					case errors <- err:
					default:
					}
				}
			}
		}()
	}

	for i := range data {
		workQueue <- &data[i]
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if len(errors) > 0 {
		return <-errors
	}
	return nil
}

// renderFile draws the annotations of d onto its image and saves the result
// to outDir.
func renderFile(d *AnnotatedFile, outDir string, palette map[string]color.NRGBA,
		opts RenderOptions) error {

	img, _, err := loadImage(d.FilePath)
	if err != nil {
		return fmt.Errorf("cannot load image %q: %v", d.FilePath, err)
	}
	canvas := imaging.Clone(img)

	for _, a := range d.Annotations {
		col := palette[a.Label]
		r := image.Rect(int(a.Coords[0]), int(a.Coords[1]), int(a.Coords[2]), int(a.Coords[3]))
		drawRectOutline(canvas, r, col, opts.LineWidth)
		drawLabelTag(canvas, r.Min.X, r.Min.Y, a.Label, col)
	}

	outPath := filepath.Join(outDir, filepath.Base(d.FilePath))
	if err := saveImage(outPath, canvas, opts.JPEGQuality); err != nil {
		return fmt.Errorf("cannot save annotated image %q: %v", outPath, err)
	}
	return nil
}

// drawRectOutline draws the outline of r with the given line width, clipped
// to the image bounds.
func drawRectOutline(img *image.NRGBA, r image.Rectangle, col color.NRGBA, width int) {
	bounds := img.Bounds()
	for i := 0; i < width; i++ {
		edge := r.Inset(i)
		if edge.Empty() {
			break
		}
		for x := edge.Min.X; x < edge.Max.X; x++ {
			setClipped(img, bounds, x, edge.Min.Y, col)
			setClipped(img, bounds, x, edge.Max.Y-1, col)
		}
		for y := edge.Min.Y; y < edge.Max.Y; y++ {
			setClipped(img, bounds, edge.Min.X, y, col)
			setClipped(img, bounds, edge.Max.X-1, y, col)
		}
	}
}

func setClipped(img *image.NRGBA, bounds image.Rectangle, x, y int, col color.NRGBA) {
	if image.Pt(x, y).In(bounds) {
		img.SetNRGBA(x, y, col)
	}
}

// drawLabelTag draws text on a filled background above the point (x, y), or
// below it when there is no room above.
func drawLabelTag(img *image.NRGBA, x, y int, text string, bg color.NRGBA) {
	face := basicfont.Face7x13
	tagW := font.MeasureString(face, text).Ceil() + 4
	tagH := face.Height + 4

	top := y - tagH
	if top < img.Bounds().Min.Y {
		top = y
	}
	tag := image.Rect(x, top, x+tagW, top+tagH)

	bounds := img.Bounds()
	for py := tag.Min.Y; py < tag.Max.Y; py++ {
		for px := tag.Min.X; px < tag.Max.X; px++ {
			setClipped(img, bounds, px, py, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(tag.Min.X+2, tag.Max.Y-4),
	}
	d.DrawString(text)
}
