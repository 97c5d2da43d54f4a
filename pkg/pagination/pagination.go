package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params holds the 1-based page position requested by a grid.
type Params struct {
	PageIndex int
	PageSize  int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return FromValues(c.QueryParams())
}

// FromValues extracts pagination parameters from raw query values. Both the
// backend's pageIndex/pageSize and the shorter page/size forms are accepted.
func FromValues(q url.Values) Params {
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if size <= 0 {
		size, _ = strconv.Atoi(q.Get("size"))
	}
	index, _ := strconv.Atoi(q.Get("pageIndex"))
	if index <= 0 {
		index, _ = strconv.Atoi(q.Get("page"))
	}
	return Params{PageIndex: index, PageSize: size}.Normalize()
}

// Normalize defaults a missing page or size and caps the size at MaxPageSize.
func (p Params) Normalize() Params {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.PageIndex <= 0 {
		p.PageIndex = 1
	}
	return p
}

// Values encodes the params for a backend query string.
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("pageIndex", strconv.Itoa(p.PageIndex))
	v.Set("pageSize", strconv.Itoa(p.PageSize))
	return v
}

// Offset returns the zero-based index of the first item on the page.
func (p Params) Offset() int {
	if p.PageIndex <= 1 {
		return 0
	}
	return (p.PageIndex - 1) * p.PageSize
}

// Page is the backend's pagination envelope.
type Page[T any] struct {
	PageIndex       int  `json:"pageIndex"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
	Data            []T  `json:"data"`
}

// NewPage builds a page and derives the page count and navigation flags.
func NewPage[T any](data []T, pageIndex, pageSize, totalItems int) *Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := TotalPages(totalItems, pageSize)
	return &Page[T]{
		PageIndex:       pageIndex,
		PageSize:        pageSize,
		TotalItems:      totalItems,
		TotalPages:      pages,
		HasPreviousPage: pageIndex > 1,
		HasNextPage:     pageIndex < pages,
		Data:            data,
	}
}

// TotalPages returns ceil(totalItems / pageSize), or 0 for a non-positive size.
func TotalPages(totalItems, pageSize int) int {
	if pageSize <= 0 || totalItems <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}
