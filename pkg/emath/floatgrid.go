package emath

import(
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a grid of floats, with some operations. Values are
// stored row-major, so each row is a contiguous slice.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromValues wraps `values` (not copied), which must hold w*h floats.
func NewFloatGridFromValues(w int, values []float64) (FloatGrid, error) {
	if w <= 0 || len(values) % w != 0 {
		return FloatGrid{}, fmt.Errorf("floatgrid: %d values do not fill rows of width %d", len(values), w)
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Row(y int) []float64     { return fg.values[fg.stride*y : fg.stride*(y+1)] }
func (fg *FloatGrid)Values() []float64       { return fg.values }
func (fg *FloatGrid)Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }

func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

// AddScaledRect adds `scale` times the `src` pixels inside `srcRect`
// into this grid, with srcRect.Min landing on `dst`. The caller must
// have clipped both rectangles already; this does no bounds fixups.
func (fg *FloatGrid)AddScaledRect(src *FloatGrid, srcRect image.Rectangle, dst image.Point, scale float64) {
	w := srcRect.Dx()
	for y:=0; y<srcRect.Dy(); y++ {
		dRow := fg.Row(dst.Y + y)[dst.X : dst.X+w]
		sRow := src.Row(srcRect.Min.Y + y)[srcRect.Min.X : srcRect.Min.X+w]
		floats.AddScaled(dRow, scale, sRow)
	}
}

// SetScaledRect is like AddScaledRect, but overwrites the destination pixels.
func (fg *FloatGrid)SetScaledRect(src *FloatGrid, srcRect image.Rectangle, dst image.Point, scale float64) {
	w := srcRect.Dx()
	for y:=0; y<srcRect.Dy(); y++ {
		dRow := fg.Row(dst.Y + y)[dst.X : dst.X+w]
		sRow := src.Row(srcRect.Min.Y + y)[srcRect.Min.X : srcRect.Min.X+w]
		floats.ScaleTo(dRow, scale, sRow)
	}
}

func (fg *FloatGrid)Sum() float64 {
	return floats.Sum(fg.values)
}

// FindMinMaxAtPercentile ignores zero pixels; in a contamination plane
// most of the frame is empty, and the stretch should come from the traces.
func (I *FloatGrid)FindMinMaxAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vI := []float64{}

  for i:=0 ; i<len(I.values) ; i++ {
		if val := I.values[i]; val != 0.0 {
			vI = append(vI, val)
		}
	}
	if len(vI) == 0 {
		return 0, 0
	}

	sort.Float64s(vI)

	iMin := int(minPrct * float64(len(vI)))
	iMax := int(maxPrct * float64(len(vI)))
	if iMin < 0        { iMin = 0 }
	if iMax >= len(vI) { iMax = len(vI)-1 }

  return vI[iMin], vI[iMax]
}

func (fg *FloatGrid)Stats() string {
	if len(fg.values) == 0 {
		return "fg[empty]"
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}, sum %g]", fg.Dx(), fg.Dy(),
		floats.Min(fg.values), floats.Max(fg.values), fg.Sum())
}

// ToImg saves a false-color image, stretched between the 1st and 99.9th
// percentile of the non-zero values, gamma scaled to look normal for
// human vision, with `title` printed in the corner.
func (fg *FloatGrid)ToImg(title, filename string) error {
	min, max := fg.FindMinMaxAtPercentile(0.01, 0.999)

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			v := 0.0
			if max > min {
				v = math.Max(0, math.Min(1, (fg.Get(x,y) - min) / (max - min)))
			}
			// Flip vertically, so row 0 is at the bottom like a detector readout
			img.Set(x, fg.Dy()-1-y, Colormap(GammaExpand_F64(v)))
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,1,1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
