// Package pagination implements opaque cursor paging over id-ordered rows.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

// Params are the query parameters of a paged listing.
type Params struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=20"`
}

// Cursor marks the last row of a page. Identifiers are time-ordered, so
// paging by id keeps pages stable while new rows arrive.
type Cursor struct {
	ID int64 `json:"id"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func Encode(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func Decode(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidPageToken
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidPageToken
	}
	return c, nil
}

// ClampSize bounds a requested page size.
func ClampSize(size, def, max int) int {
	if size <= 0 {
		return def
	}
	if size > max {
		return max
	}
	return size
}

// Trim cuts a limit+1 result set to a page and reports whether more rows
// remain, with the cursor of the last returned row.
func Trim[T any](items []T, limit int, cursorOf func(T) Cursor) ([]T, PageInfo) {
	if len(items) == 0 {
		return items, PageInfo{}
	}

	info := PageInfo{}
	if len(items) > limit {
		info.HasMore = true
		items = items[:limit]
	}
	info.NextPageToken = Encode(cursorOf(items[len(items)-1]))
	return items, info
}
