package compose

// Slot is where one item lands: the zero-based page and its top offset.
type Slot struct {
	Page int
	Top  int
}

// packer implements greedy next-fit placement. An item that does not fit
// the current page starts a new one; an item taller than a page gets a
// page of its own.
type packer struct {
	pageHeight int
	gap        int

	page  int
	y     int
	count int
}

func (p *packer) fits(h int) bool {
	return p.count == 0 || p.y+p.gap+h <= p.pageHeight
}

func (p *packer) newPage() {
	p.page++
	p.y = 0
	p.count = 0
}

// add places an item on the current page and returns its top offset.
func (p *packer) add(h int) int {
	if p.count > 0 {
		p.y += p.gap
	}
	top := p.y
	p.y += h
	p.count++
	return top
}

// Paginate assigns every height a slot using the same rules as Compose.
func Paginate(heights []int, pageHeight, gap int) []Slot {
	p := &packer{pageHeight: pageHeight, gap: gap}
	slots := make([]Slot, 0, len(heights))

	for _, h := range heights {
		if !p.fits(h) {
			p.newPage()
		}
		top := p.add(h)
		slots = append(slots, Slot{Page: p.page, Top: top})
	}

	return slots
}
