package modelgrid

import(
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
)

// readTIFFHeader pulls the KEY=value pairs out of the ImageDescription
// tag. A TIFF with no description has an empty header (and so will not
// index as a grid point).
func readTIFFHeader(filename string) (map[string]interface{}, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r exif '%s': %v", filename, err)
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil && (ex == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("exif parsing '%s': %v", filename, err)
	}

	hdr := map[string]interface{}{}
	tag, err := ex.Get(exif.ImageDescription)
	if err != nil {
		if exif.IsTagNotPresentError(err) {
			return hdr, nil
		}
		return nil, fmt.Errorf("exif ImageDescription '%s': %v", filename, err)
	}
	desc, err := tag.StringVal()
	if err != nil {
		return nil, fmt.Errorf("exif ImageDescription '%s': %v", filename, err)
	}

	return ParseDescription(desc), nil
}

// ParseDescription splits "PHXTEFF=3500 PHXLOGG=4.5 BSCALE=1e-3" into a
// header map; values that parse as numbers become float64.
func ParseDescription(desc string) map[string]interface{} {
	hdr := map[string]interface{}{}
	desc = strings.Trim(desc, "\x00 ")
	for _, field := range strings.FieldsFunc(desc, func(r rune) bool { return r == ' ' || r == ';' || r == '\n' }) {
		k, v, found := strings.Cut(field, "=")
		if !found || k == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			hdr[k] = f
		} else {
			hdr[k] = v
		}
	}
	return hdr
}

// readTIFFPoint loads the pixels as flux, rows being the mu axis. The
// header supplies BSCALE/BZERO (default 1 and 0).
func readTIFFPoint(filename string, header map[string]interface{}) (*RawPoint, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	bscale, bzero := 1.0, 0.0
	if v, ok := header["BSCALE"].(float64); ok { bscale = v }
	if v, ok := header["BZERO"].(float64); ok  { bzero = v }

	return &RawPoint{Flux: imageToFlux(img, bscale, bzero)}, nil
}

func imageToFlux(img image.Image, bscale, bzero float64) [][]float64 {
	b := img.Bounds()
	flux := make([][]float64, b.Dy())

	for y:=b.Min.Y; y<b.Max.Y; y++ {
		row := make([]float64, b.Dx())
		for x:=b.Min.X; x<b.Max.X; x++ {
			var v uint16
			switch g := img.(type) {
			case *image.Gray16: v = g.Gray16At(x, y).Y
			default:            v = color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			}
			row[x-b.Min.X] = bzero + bscale*float64(v)
		}
		flux[y-b.Min.Y] = row
	}

	return flux
}
