package pdf

// A4 in PDF points.
const (
	A4Width  = 595.28
	A4Height = 841.89
)

// Box is the area an image is fitted into, in points.
type Box struct {
	Width     float64
	Height    float64
	TopMargin float64
}

func A4(topMargin float64) Box {
	return Box{Width: A4Width, Height: A4Height, TopMargin: topMargin}
}

// Placement is the fitted image rectangle. X and Top are measured from
// the left and top page edges.
type Placement struct {
	Scale  float64
	Width  float64
	Height float64
	X      float64
	Top    float64
}

// Fit scales an imgW x imgH pixel image into the box below the top margin,
// preserving aspect ratio. Images relatively wider than the usable area
// fill its width, others fill its height. The result is centred
// horizontally and anchored at the top margin.
func Fit(imgW, imgH int, box Box) Placement {
	usableW := box.Width
	usableH := box.Height - box.TopMargin

	var scale float64
	if float64(imgW)/float64(imgH) >= usableW/usableH {
		scale = usableW / float64(imgW)
	} else {
		scale = usableH / float64(imgH)
	}

	w := float64(imgW) * scale
	h := float64(imgH) * scale

	return Placement{
		Scale:  scale,
		Width:  w,
		Height: h,
		X:      (box.Width - w) / 2,
		Top:    box.TopMargin,
	}
}
