package shared

// Page is a normalized page request over a keyless listing.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// NewPage clamps page and size; a non-positive size falls back to 20 and
// sizes above maxSize are capped.
func NewPage(number, size, maxSize int) Page {
	if size <= 0 {
		size = 20
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	if number <= 0 {
		number = 1
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// FetchLimit is the row limit to request: one extra row reveals a following page.
func (p Page) FetchLimit() int { return p.Size + 1 }

// PageInfo describes the position of a fetched page.
type PageInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Info builds paging metadata from the number of rows fetched with FetchLimit.
func (p Page) Info(fetched int) PageInfo {
	info := PageInfo{Page: p.Number, PageSize: p.Size, HasNext: fetched > p.Size}
	if p.Number > 1 {
		info.PrevPage = p.Number - 1
	}
	if info.HasNext {
		info.NextPage = p.Number + 1
	}
	return info
}
