package devserver

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// parsePagination reads the 1-based "page" and "per_page" query parameters.
// Missing or invalid values fall back to page 1 and defaultPerPage;
// per_page is capped at maxPerPage.
func parsePagination(r *http.Request) (page, perPage int) {
	q := r.URL.Query()

	page = 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page = n
	}
	perPage = defaultPerPage
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		perPage = n
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// paginate returns the [start, end) window of total items for page, plus
// the page count. A page past the end yields an empty window.
func paginate(total, page, perPage int) (start, end, pages int) {
	pages = (total + perPage - 1) / perPage
	start = (page - 1) * perPage
	if start > total {
		start = total
	}
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end, pages
}
