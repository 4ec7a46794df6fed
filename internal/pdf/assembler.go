// Package pdf turns page images into A4 PDF documents.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	ErrNoPages = errors.New("no pages written")
)

func init() {
	pdfapi.DisableConfigDir()
}

type Warning struct {
	Index  int
	Path   string
	Reason string
}

type Result struct {
	Path      string
	PageCount int
	Warnings  []Warning
}

type Assembler struct {
	box    Box
	logger *slog.Logger
}

func NewAssembler(box Box, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{box: box, logger: logger}
}

// Assemble writes one A4 page per readable page image to outPath, in
// order. An existing file at outPath is replaced. Unreadable pages are
// skipped; ErrNoPages is returned when none could be written.
func (a *Assembler) Assemble(ctx context.Context, pages []string, outPath string) (*Result, error) {
	err := os.MkdirAll(filepath.Dir(outPath), 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	partial := strings.TrimSuffix(outPath, ".pdf") + ".partial.pdf"
	err = removeIfExists(partial)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(partial) }()

	conf := model.NewDefaultConfiguration()
	result := &Result{Path: outPath}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		w, h, err := imageSize(page)
		if err != nil {
			a.skip(result, i, page, err.Error())
			continue
		}

		imp, err := a.importDetails(w, h)
		if err != nil {
			return nil, fmt.Errorf("failed to build import details: %w", err)
		}

		err = pdfapi.ImportImagesFile([]string{page}, partial, imp, conf)
		if err != nil {
			a.skip(result, i, page, err.Error())
			continue
		}
		result.PageCount++
	}

	if result.PageCount == 0 {
		return nil, ErrNoPages
	}

	err = removeIfExists(outPath)
	if err != nil {
		return nil, err
	}
	err = os.Rename(partial, outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to move pdf into place: %w", err)
	}

	return result, nil
}

func (a *Assembler) importDetails(imgW, imgH int) (*pdfcpu.Import, error) {
	p := Fit(imgW, imgH, a.box)
	// Offsets are in PDF space where y grows upwards.
	details := fmt.Sprintf("dim:%.2f %.2f, pos:tc, off:0 %.2f, sc:%.6f abs",
		a.box.Width, a.box.Height, -p.Top, p.Scale)
	return pdfcpu.ParseImportDetails(details, types.POINTS)
}

func (a *Assembler) skip(result *Result, index int, path, reason string) {
	a.logger.Warn("skipping unreadable page", "index", index, "path", path, "reason", reason)
	result.Warnings = append(result.Warnings, Warning{Index: index, Path: path, Reason: reason})
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, errors.New("empty image")
	}
	return cfg.Width, cfg.Height, nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
	}
	return nil
}
