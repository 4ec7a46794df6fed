package compose

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir string, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	require.NoError(t, imaging.Save(img, path))
	return path
}

func smallLayout() Layout {
	return Layout{PageWidth: 124, PageHeight: 175, Gap: 2, Numbering: false}
}

func TestComposeOneImagePerPageWhenTwoDoNotFit(t *testing.T) {
	src := t.TempDir()
	var sources []string
	for i := 0; i < 17; i++ {
		sources = append(sources, writeFixture(t, src, fmt.Sprintf("q%02d.png", i), 124, 90))
	}

	c := NewCompositor(smallLayout(), t.TempDir(), nil)
	result, err := c.Compose(context.Background(), sources, "job")
	require.NoError(t, err)
	t.Cleanup(result.Cleanup)

	require.Len(t, result.Pages, 17)
	assert.Empty(t, result.Warnings)

	page, err := imaging.Open(result.Pages[0])
	require.NoError(t, err)
	assert.Equal(t, 124, page.Bounds().Dx())
	assert.Equal(t, 90, page.Bounds().Dy())
}

func TestComposeScalesToPageWidth(t *testing.T) {
	src := t.TempDir()
	sources := []string{
		writeFixture(t, src, "wide.png", 248, 40),
		writeFixture(t, src, "narrow.jpg", 62, 30),
	}

	c := NewCompositor(smallLayout(), t.TempDir(), nil)
	result, err := c.Compose(context.Background(), sources, "job")
	require.NoError(t, err)
	t.Cleanup(result.Cleanup)

	require.Len(t, result.Placements, 2)
	assert.Equal(t, 20, result.Placements[0].Height)
	assert.Equal(t, 60, result.Placements[1].Height)
	assert.Equal(t, 22, result.Placements[1].Top)

	require.Len(t, result.Pages, 1)
	page, err := imaging.Open(result.Pages[0])
	require.NoError(t, err)
	assert.Equal(t, 82, page.Bounds().Dy())
}

func TestComposeSkipsUnreadableWithoutConsumingNumbers(t *testing.T) {
	src := t.TempDir()
	broken := filepath.Join(src, "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0644))

	sources := []string{
		writeFixture(t, src, "a.png", 124, 40),
		broken,
		filepath.Join(src, "missing.png"),
		writeFixture(t, src, "b.png", 124, 40),
		writeFixture(t, src, "c.png", 124, 40),
	}

	layout := smallLayout()
	layout.Numbering = true
	c := NewCompositor(layout, t.TempDir(), nil)
	result, err := c.Compose(context.Background(), sources, "job")
	require.NoError(t, err)
	t.Cleanup(result.Cleanup)

	require.Len(t, result.Warnings, 2)
	assert.Equal(t, 1, result.Warnings[0].Index)
	assert.Equal(t, 2, result.Warnings[1].Index)

	require.Len(t, result.Placements, 3)
	for i, p := range result.Placements {
		assert.Equal(t, i+1, p.Number)
	}
	assert.Equal(t, []int{0, 3, 4}, []int{
		result.Placements[0].Index,
		result.Placements[1].Index,
		result.Placements[2].Index,
	})
}

func TestComposeAllUnreadable(t *testing.T) {
	src := t.TempDir()
	broken := filepath.Join(src, "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte{0xff, 0xd8, 0x00}, 0644))

	out := t.TempDir()
	c := NewCompositor(smallLayout(), out, nil)
	_, err := c.Compose(context.Background(), []string{broken}, "job")
	assert.ErrorIs(t, err, ErrNoPages)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComposeHonoursCancellation(t *testing.T) {
	src := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCompositor(smallLayout(), t.TempDir(), nil)
	_, err := c.Compose(ctx, []string{writeFixture(t, src, "a.png", 124, 40)}, "job")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderLabelScalesWithPageWidth(t *testing.T) {
	small := renderLabel(1, 300)
	assert.Equal(t, 20, small.Bounds().Dx())
	assert.Equal(t, 19, small.Bounds().Dy())

	large := renderLabel(1, 1240)
	assert.Equal(t, 60, large.Bounds().Dx())
	assert.Equal(t, 57, large.Bounds().Dy())
}
