package report

// defaultAspect is assumed when an image reports no usable dimensions.
const defaultAspect = 4.0 / 3.0

// Box is a rectangle in millimetres.
type Box struct {
	X, Y, W, H float64
}

// FitAspect returns the largest box with the given width/height ratio that
// fits inside outer, centred on both axes. A non-positive ratio falls back
// to 4:3.
func FitAspect(outer Box, ratio float64) Box {
	if ratio <= 0 {
		ratio = defaultAspect
	}
	w, h := outer.W, outer.W/ratio
	if h > outer.H {
		h = outer.H
		w = h * ratio
	}
	return Box{
		X: outer.X + (outer.W-w)/2,
		Y: outer.Y + (outer.H-h)/2,
		W: w,
		H: h,
	}
}

// Inset shrinks b by pad on every side.
func (b Box) Inset(pad float64) Box {
	return Box{X: b.X + pad, Y: b.Y + pad, W: b.W - 2*pad, H: b.H - 2*pad}
}
