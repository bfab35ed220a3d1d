package services

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Page describes one page of a listing
type Page struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Pages   int   `json:"pages"`
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func newPage(total int64, page, perPage int) Page {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return Page{Total: total, Page: page, PerPage: perPage, Pages: pages}
}

func offset(page, perPage int) int {
	return (page - 1) * perPage
}
