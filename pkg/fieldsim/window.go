package fieldsim

import(
	"fmt"
	"image"
)

// A Window is the part of a model array that lands on the output frame:
// model pixels Src are copied to the frame starting at Dst. Both sides
// have the same size.
type Window struct {
	Src image.Rectangle
	Dst image.Point
}

func (w Window)String() string { return fmt.Sprintf("%v->%v", w.Src, w.Dst) }

// DstRect is the region of the output frame the window covers.
func (w Window)DstRect() image.Rectangle { return w.Src.Sub(w.Src.Min).Add(w.Dst) }

// ComputeWindow works out the overlap between a padded model array and
// the output frame, for a star `offset` integer pixels away from the
// sweet spot. Pixel `pad` of the model array is the star's own position,
// so the frame maps onto model pixels [pad-offset, pad-offset+frame).
//
// It returns false when there's no overlap at all.
func ComputeWindow(offset, pad, model, frame image.Point) (Window, bool) {
	mx0 := pad.X - offset.X
	mx1 := mx0 + frame.X
	my0 := pad.Y - offset.Y
	my1 := my0 + frame.Y

	if mx0 > model.X || my0 > model.Y {
		return Window{}, false
	}
	if mx1 < 0 || my1 < 0 {
		return Window{}, false
	}

	// Whatever is trimmed off the start of the model side shifts the
	// destination by the same amount
	dst := image.Point{}
	if mx0 < 0 { dst.X, mx0 = -mx0, 0 }
	if my0 < 0 { dst.Y, my0 = -my0, 0 }
	if mx1 > model.X { mx1 = model.X }
	if my1 > model.Y { my1 = model.Y }

	w := Window{Src: image.Rect(mx0, my0, mx1, my1), Dst: dst}
	if w.Src.Empty() {
		return Window{}, false
	}
	return w, true
}
