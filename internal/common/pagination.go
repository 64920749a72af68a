package common

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

const maxPerPage = 100

// maxPage keeps (page-1)*perPage inside int for any accepted perPage.
const maxPage = math.MaxInt / maxPerPage

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination extracts page and per-page parameters from query values.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = QueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	perPage = QueryInt(r, "limit", defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return
}

// PageBounds returns the [start, end) slice bounds of page within total items.
func PageBounds(page, perPage, total int) (start, end int) {
	if total <= 0 || perPage < 1 {
		return 0, 0
	}
	if page < 1 {
		page = 1
	}
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	if page > pages {
		return total, total
	}
	start = (page - 1) * perPage
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end
}

// QueryInt reads an integer query parameter, returning def when it is absent
// or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
