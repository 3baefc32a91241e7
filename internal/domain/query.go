package domain

import "strings"

const (
	DefaultPageSize = 6
	MaxPageSize     = 50
)

// EventQuery selects a page of events. Query is a title prefix, not a
// full-text search.
type EventQuery struct {
	Query       string
	CategoryID  string
	OrganizerID string
	ExcludeID   string
	Page        int
	Limit       int
	Cursor      string
}

// Normalize clamps paging to the supported range. The first page is always
// found by skipping, so a cursor only counts from page 2 on.
func (q *EventQuery) Normalize() {
	q.Query = strings.TrimSpace(q.Query)
	q.CategoryID = strings.TrimSpace(q.CategoryID)
	q.Cursor = strings.TrimSpace(q.Cursor)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page == 1 {
		q.Cursor = ""
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
}

// Skip is the number of documents skipped for offset paging.
func (q EventQuery) Skip() int64 {
	if q.Page < 1 {
		return 0
	}
	return int64(q.Page-1) * int64(q.Limit)
}

type EventPage struct {
	Data       []Event `json:"data"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int64   `json:"total"`
	TotalPages int     `json:"total_pages"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// EmptyEventPage is what callers get when a query fails.
func EmptyEventPage(q EventQuery) EventPage {
	return EventPage{Data: []Event{}, Page: q.Page, Limit: q.Limit}
}

// TotalPages returns ceil(total / pageSize), or 0 for a zero page size.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
