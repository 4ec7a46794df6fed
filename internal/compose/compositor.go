// Package compose lays question images out on fixed-width page images.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoPages = errors.New("no pages produced")
)

// Layout controls page geometry in pixels.
type Layout struct {
	PageWidth  int
	PageHeight int
	Gap        int
	Numbering  bool
}

// DefaultLayout is A4 at roughly 150 DPI.
func DefaultLayout() Layout {
	return Layout{
		PageWidth:  1240,
		PageHeight: 1754,
		Gap:        12,
		Numbering:  true,
	}
}

// Placement records where a source image ended up.
type Placement struct {
	Index  int // position in the source list
	Number int // printed label, 1-based, counts placed images only
	Page   int
	Top    int
	Height int
}

// Warning describes a source image that was skipped.
type Warning struct {
	Index  int
	Path   string
	Reason string
}

type Result struct {
	Pages      []string
	Placements []Placement
	Warnings   []Warning
}

// Cleanup removes the page files. Missing files are ignored.
func (r *Result) Cleanup() {
	if r == nil {
		return
	}
	for _, p := range r.Pages {
		_ = os.Remove(p)
	}
}

type Compositor struct {
	layout  Layout
	tempDir string
	logger  *slog.Logger
}

func NewCompositor(layout Layout, tempDir string, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		layout:  layout,
		tempDir: tempDir,
		logger:  logger,
	}
}

type placed struct {
	img *image.NRGBA
	top int
}

// Compose scales every readable source to the page width, optionally
// numbers it, and packs the results onto JPEG pages written under the
// temp dir with the given name prefix.
func (c *Compositor) Compose(ctx context.Context, sources []string, prefix string) (*Result, error) {
	err := os.MkdirAll(c.tempDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	result := &Result{}
	pk := &packer{pageHeight: c.layout.PageHeight, gap: c.layout.Gap}
	var current []placed
	number := 0

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		path := filepath.Join(c.tempDir, fmt.Sprintf("%s_page_%03d.jpg", prefix, pk.page+1))
		err := c.writePage(current, pk.y, path)
		if err != nil {
			return err
		}
		result.Pages = append(result.Pages, path)
		current = nil
		return nil
	}

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			result.Cleanup()
			return nil, err
		}

		img, err := imaging.Open(src)
		if err != nil {
			c.skip(result, i, src, err.Error())
			continue
		}
		b := img.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			c.skip(result, i, src, "empty image")
			continue
		}

		scaled := imaging.Resize(img, c.layout.PageWidth, 0, imaging.Lanczos)
		number++
		if c.layout.Numbering {
			scaled = stampLabel(scaled, number)
		}
		h := scaled.Bounds().Dy()

		if !pk.fits(h) {
			err = flush()
			if err != nil {
				result.Cleanup()
				return nil, err
			}
			pk.newPage()
		}

		top := pk.add(h)
		current = append(current, placed{img: scaled, top: top})
		result.Placements = append(result.Placements, Placement{
			Index:  i,
			Number: number,
			Page:   pk.page,
			Top:    top,
			Height: h,
		})
	}

	if number == 0 {
		return nil, ErrNoPages
	}

	err = flush()
	if err != nil {
		result.Cleanup()
		return nil, err
	}

	c.logger.Debug("composed pages",
		"prefix", prefix,
		"sources", len(sources),
		"placed", number,
		"pages", len(result.Pages))

	return result, nil
}

func (c *Compositor) skip(result *Result, index int, path, reason string) {
	c.logger.Warn("skipping unreadable image", "index", index, "path", path, "reason", reason)
	result.Warnings = append(result.Warnings, Warning{Index: index, Path: path, Reason: reason})
}

func (c *Compositor) writePage(items []placed, height int, path string) error {
	canvas := imaging.New(c.layout.PageWidth, height, color.White)
	for _, it := range items {
		canvas = imaging.Overlay(canvas, it.img, image.Pt(0, it.top), 1.0)
	}

	err := imaging.Save(canvas, path, imaging.JPEGQuality(90))
	if err != nil {
		return fmt.Errorf("failed to write page %s: %w", filepath.Base(path), err)
	}
	return nil
}
