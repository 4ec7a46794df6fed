package compose

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginateSeventeenTallImages(t *testing.T) {
	heights := make([]int, 17)
	for i := range heights {
		heights[i] = 900
	}

	slots := Paginate(heights, 1754, 20)
	require.Len(t, slots, 17)
	for i, s := range slots {
		assert.Equal(t, i, s.Page)
		assert.Equal(t, 0, s.Top)
	}
}

func TestPaginatePacksWithGap(t *testing.T) {
	slots := Paginate([]int{500, 500, 500, 800}, 1754, 12)

	assert.Equal(t, []Slot{
		{Page: 0, Top: 0},
		{Page: 0, Top: 512},
		{Page: 0, Top: 1024},
		{Page: 1, Top: 0},
	}, slots)
}

func TestPaginateOversizedGetsOwnPage(t *testing.T) {
	slots := Paginate([]int{300, 2500, 300}, 1754, 12)

	assert.Equal(t, []Slot{
		{Page: 0, Top: 0},
		{Page: 1, Top: 0},
		{Page: 2, Top: 0},
	}, slots)
}

func TestPaginateGreedyInvariants(t *testing.T) {
	const pageHeight, gap = 1754, 12
	r := rand.New(rand.NewPCG(7, 11))

	for round := 0; round < 200; round++ {
		heights := make([]int, 1+r.IntN(30))
		for i := range heights {
			heights[i] = 1 + r.IntN(pageHeight)
		}

		slots := Paginate(heights, pageHeight, gap)
		require.Len(t, slots, len(heights))

		used := map[int]int{}
		for i, s := range slots {
			bottom := s.Top + heights[i]
			assert.LessOrEqual(t, bottom, pageHeight, "round %d item %d overflows", round, i)
			used[s.Page] = bottom

			if i == 0 {
				continue
			}
			prev := slots[i-1]
			if s.Page == prev.Page {
				assert.Equal(t, prev.Top+heights[i-1]+gap, s.Top)
			} else {
				// Next-fit only opens a page when the item did not fit.
				assert.Equal(t, prev.Page+1, s.Page)
				assert.Greater(t, used[prev.Page]+gap+heights[i], pageHeight)
			}
		}
	}
}
