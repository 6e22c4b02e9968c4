package tgui

import "fmt"

// Page describes one page of a list. Index is 0-based.
type Page struct {
	Index   int
	Pages   int
	From    int
	To      int
	HasPrev bool
	HasNext bool
}

// Paginate clamps page into range and returns the slice bounds for it.
// An empty list still has one page.
func Paginate(total, page, size int) Page {
	if size <= 0 {
		size = 10
	}
	pages := max(1, (total+size-1)/size)
	page = min(max(page, 0), pages-1)
	from := page * size
	to := min(from+size, total)
	return Page{
		Index:   page,
		Pages:   pages,
		From:    from,
		To:      to,
		HasPrev: page > 0,
		HasNext: page < pages-1,
	}
}

// Label is the compact "📄 p/n" page indicator.
func (p Page) Label() string {
	return fmt.Sprintf("📄 %d/%d", p.Index+1, p.Pages)
}
