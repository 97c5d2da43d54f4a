package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.PageSize != DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", DefaultPageSize, p.PageSize)
	}
	if p.PageIndex != 1 {
		t.Errorf("expected default page index 1, got %d", p.PageIndex)
	}
}

func TestFromContext_BackendParams(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?pageIndex=3&pageSize=25", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.PageIndex != 3 {
		t.Errorf("expected page index 3, got %d", p.PageIndex)
	}
	if p.PageSize != 25 {
		t.Errorf("expected page size 25, got %d", p.PageSize)
	}
}

func TestFromContext_ShortParams(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=2&size=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.PageIndex != 2 || p.PageSize != 10 {
		t.Errorf("expected page 2 size 10, got page %d size %d", p.PageIndex, p.PageSize)
	}
}

func TestFromContext_MaxPageSize(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?pageSize=500", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.PageSize != MaxPageSize {
		t.Errorf("expected page size capped at %d, got %d", MaxPageSize, p.PageSize)
	}
}

func TestFromContext_NegativeIndex(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?pageIndex=-4", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.PageIndex != 1 {
		t.Errorf("expected negative index clamped to 1, got %d", p.PageIndex)
	}
}

func TestParams_Values(t *testing.T) {
	v := Params{PageIndex: 4, PageSize: 15}.Values()
	if v.Get("pageIndex") != "4" {
		t.Errorf("expected pageIndex 4, got %q", v.Get("pageIndex"))
	}
	if v.Get("pageSize") != "15" {
		t.Errorf("expected pageSize 15, got %q", v.Get("pageSize"))
	}
}

func TestParams_Normalize(t *testing.T) {
	tests := []struct {
		in, want Params
	}{
		{Params{}, Params{PageIndex: 1, PageSize: DefaultPageSize}},
		{Params{PageIndex: 3, PageSize: 500}, Params{PageIndex: 3, PageSize: MaxPageSize}},
		{Params{PageIndex: -2, PageSize: 5}, Params{PageIndex: 1, PageSize: 5}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParams_Offset(t *testing.T) {
	tests := []struct {
		p    Params
		want int
	}{
		{Params{PageIndex: 1, PageSize: 10}, 0},
		{Params{PageIndex: 2, PageSize: 10}, 10},
		{Params{PageIndex: 5, PageSize: 20}, 80},
		{Params{PageIndex: 0, PageSize: 20}, 0},
	}
	for _, tt := range tests {
		if got := tt.p.Offset(); got != tt.want {
			t.Errorf("Offset(%+v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{47, 10, 5},
		{50, 10, 5},
		{51, 10, 6},
		{0, 10, 0},
		{1, 10, 1},
		{10, 0, 0},
		{10, -1, 0},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestNewPage_Flags(t *testing.T) {
	p := NewPage([]string{"a", "b"}, 1, 10, 47)
	if p.TotalPages != 5 {
		t.Errorf("expected 5 total pages, got %d", p.TotalPages)
	}
	if p.HasPreviousPage {
		t.Error("expected no previous page on the first page")
	}
	if !p.HasNextPage {
		t.Error("expected a next page on the first page")
	}

	last := NewPage([]string{"z"}, 5, 10, 47)
	if !last.HasPreviousPage {
		t.Error("expected a previous page on the last page")
	}
	if last.HasNextPage {
		t.Error("expected no next page on the last page")
	}
}

func TestNewPage_NilData(t *testing.T) {
	p := NewPage[int](nil, 1, 10, 0)
	if p.Data == nil {
		t.Error("expected empty, non-nil data slice")
	}
	if p.HasNextPage || p.HasPreviousPage {
		t.Error("expected no navigation on an empty result")
	}
}
