package pagination

import (
	"net/url"
	"strconv"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a validated page request.
type Params struct {
	Page  int
	Limit int
}

// ParseParams reads "page" and "limit" from query values, applying
// defaults when absent. Out-of-range values fail validation rather than
// being silently clamped.
func ParseParams(q url.Values) (Params, error) {
	p := Params{Page: DefaultPage, Limit: DefaultLimit}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, apperr.Validation("page must be a positive integer")
		}
		p.Page = page
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxLimit {
			return Params{}, apperr.Validation("limit must be between 1 and 100")
		}
		p.Limit = limit
	}

	return p, nil
}

// Offset returns the number of rows to skip for this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta describes one page of an ordered result set.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Envelope wraps a page of data with its pagination metadata.
type Envelope struct {
	Data       any  `json:"data"`
	Pagination Meta `json:"pagination"`
}

// NewEnvelope builds the response envelope for one page. total is the
// stable count taken in the same logical view as the data slice.
func NewEnvelope(data any, p Params, total int64) Envelope {
	totalPages := int(total / int64(p.Limit))
	if total%int64(p.Limit) != 0 {
		totalPages++
	}

	return Envelope{
		Data: data,
		Pagination: Meta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    p.Page < totalPages,
			HasPrev:    p.Page > 1,
		},
	}
}
