package compose

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	labelPadding = 3
	labelMargin  = 8
	// labelBaseWidth is the page width at which glyphs are drawn at 1x.
	labelBaseWidth = 400
)

var labelBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 220}

// renderLabel draws "{n}." on a translucent white box, scaled up for the
// given page width.
func renderLabel(n, pageWidth int) *image.NRGBA {
	face := basicfont.Face7x13
	text := strconv.Itoa(n) + "."

	textWidth := font.MeasureString(face, text).Ceil()
	w := textWidth + 2*labelPadding
	h := face.Height + 2*labelPadding

	box := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(box, box.Bounds(), image.NewUniform(labelBackground), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  box,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(labelPadding, labelPadding+face.Ascent),
	}
	d.DrawString(text)

	scale := pageWidth / labelBaseWidth
	if scale <= 1 {
		return box
	}
	return imaging.Resize(box, w*scale, h*scale, imaging.NearestNeighbor)
}

// stampLabel overlays the number label near the top-left corner of img.
func stampLabel(img *image.NRGBA, n int) *image.NRGBA {
	label := renderLabel(n, img.Bounds().Dx())
	return imaging.Overlay(img, label, image.Pt(labelMargin, labelMargin), 1.0)
}
