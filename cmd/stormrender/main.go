// Command stormrender renders every output of a weather analysis offline,
// without the HTTP service or the AI provider: SVG and PNG overlays, the
// wind field, the summary card and the CSV export.
//
// The analysis file may be a raw AI response (code fences allowed) or an
// analysis previously returned by the service.
//
// Usage:
//
//	go run ./cmd/stormrender \
//	  -analysis testdata/hurricane.json \
//	  -image testdata/hurricane.jpg \
//	  -out out/ -hour 18 -layers track,surge
package main

import (
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/render"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// output is one rendered file.
type output struct {
	file string
	fn   func(w io.Writer) error
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stormrender", flag.ContinueOnError)
	fs.SetOutput(stderr)
	analysisPath := fs.String("analysis", "", "path to the analysis JSON")
	imagePath := fs.String("image", "", "path to the source image (optional)")
	outDir := fs.String("out", ".", "output directory")
	hour := fs.Float64("hour", 0, "storm-track scrubber hour")
	layerList := fs.String("layers", "", "comma-separated overlay layers (default all)")
	width := fs.Int("width", 0, "overlay width; defaults to the image size")
	height := fs.Int("height", 0, "overlay height; defaults to the image size")
	cardWidth := fs.Int("card-width", 1080, "summary card width")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *analysisPath == "" {
		fs.Usage()
		return 2
	}

	a, photo, err := load(*analysisPath, *imagePath)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}
	layers, err := render.ParseLayers(*layerList)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	w, h := *width, *height
	if w == 0 && h == 0 {
		w, h = 1024, 768
		if photo != nil {
			b := photo.Bounds()
			w, h = b.Dx(), b.Dy()
		}
	}
	opts := render.Options{Width: w, Height: h, Hour: *hour, Layers: layers}

	fonts, err := render.LoadFonts()
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}
	defer fonts.Close()
	canvas := render.NewCanvas(fonts)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "FATAL: create output dir: %v\n", err)
		return 1
	}

	outputs := []output{
		{file: "overlay.svg", fn: func(wr io.Writer) error { return render.SVGOverlay(wr, a, opts) }},
		{file: "overlay.png", fn: func(wr io.Writer) error { return canvas.OverlayPNG(wr, a, photo, opts) }},
		{file: "wind.png", fn: func(wr io.Writer) error { return canvas.WindPNG(wr, a.WindField, w, h) }},
		{file: "card.png", fn: func(wr io.Writer) error { return render.Card(wr, a, photo, fonts, *cardWidth) }},
		{file: "export.csv", fn: func(wr io.Writer) error { return domain.WriteCSV(wr, a) }},
	}

	fmt.Fprintf(stdout, "Analysis %s (%s), %dx%d at hour %g\n\n", a.ID, locationOrUnknown(a), w, h, *hour)
	failed := 0
	for _, o := range outputs {
		path := filepath.Join(*outDir, o.file)
		if err := writeFile(path, o.fn); err != nil {
			failed++
			fmt.Fprintf(stdout, "  %-12s \033[31mFAIL\033[0m %v\n", o.file, err)
			continue
		}
		fmt.Fprintf(stdout, "  %-12s \033[32mOK\033[0m   %s\n", o.file, path)
	}

	if failed > 0 {
		fmt.Fprintf(stdout, "\n%d of %d outputs failed.\n", failed, len(outputs))
		return 1
	}
	return 0
}

// load reads the analysis and the optional image. An analysis without an ID
// is stamped as if it had just been produced for the image.
func load(analysisPath, imagePath string) (domain.WeatherAnalysis, image.Image, error) {
	raw, err := os.ReadFile(analysisPath)
	if err != nil {
		return domain.WeatherAnalysis{}, nil, fmt.Errorf("read analysis: %w", err)
	}
	a, err := domain.ParseAnalysis(raw)
	if err != nil {
		return domain.WeatherAnalysis{}, nil, err
	}

	var (
		src   domain.SourceImage
		photo image.Image
	)
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return domain.WeatherAnalysis{}, nil, fmt.Errorf("read image: %w", err)
		}
		photo, _, err = render.DecodeImage(data)
		if err != nil {
			return domain.WeatherAnalysis{}, nil, err
		}
		src = domain.SourceImage{Data: data, FileName: filepath.Base(imagePath)}
	}
	if a.ID == "" {
		a = domain.Stamp(a, src)
	}
	return a, photo, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func locationOrUnknown(a domain.WeatherAnalysis) string {
	if a.LocationName == "" {
		return "unknown location"
	}
	return a.LocationName
}
