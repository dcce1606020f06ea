package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Algorithm-App/eval-med-app/pkg/query"
)

// SortFields is an ordered list of requested sort keys.
type SortFields []query.SortField

// Allowed keeps only the fields accepted by has, preserving order.
// Client-supplied names never reach SQL unless the caller's projection knows them.
func (s SortFields) Allowed(has func(field string) bool) SortFields {
	kept := make(SortFields, 0, len(s))
	for _, f := range s {
		if has(f.Field) {
			kept = append(kept, f)
		}
	}
	return kept
}

// PageRequest is a client request for one page of a listing with optional
// search text and sort keys.
type PageRequest struct {
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Search   *string    `json:"search,omitempty"`
	Sort     SortFields `json:"sort,omitempty"`
}

// Normalize clamps the page to at least one and the page size to the configured bounds.
func (r *PageRequest) Normalize(cfg Config) {
	r.Page = max(r.Page, 1)
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	r.PageSize = min(r.PageSize, cfg.MaxPageSize)
}

// PageRequestFromQuery reads page, page_size, search and sort from query values.
// Unparseable numbers fall back to defaults and blank search text is ignored.
func PageRequestFromQuery(values url.Values, cfg Config) PageRequest {
	page, _ := strconv.Atoi(values.Get("page"))
	pageSize, _ := strconv.Atoi(values.Get("page_size"))

	req := PageRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     query.ParseSortFields(values.Get("sort")),
	}
	if s := strings.TrimSpace(values.Get("search")); s != "" {
		req.Search = &s
	}

	req.Normalize(cfg)
	return req
}

// PageResult holds a page of data along with pagination metadata.
type PageResult[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPageResult creates a PageResult. TotalPages is at least one and data is never nil.
func NewPageResult[T any](data []T, total, page, pageSize int) PageResult[T] {
	totalPages := 1
	if pageSize > 0 && total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	if data == nil {
		data = []T{}
	}

	return PageResult[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
