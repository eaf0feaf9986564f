package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Pagination is the cursor-and-limit pair bound from list query strings.
type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10" validate:"gte=1,lte=250"`
}

// Cursor marks a position in a listing. IDs are snowflakes, so ordering by
// id descending walks records newest first and the last seen id is enough
// to resume.
type Cursor struct {
	ID string `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// TrimPage drops the extra row fetched to probe for a next page and builds
// the page info from what remains.
func TrimPage[T any](rows []*T, limit int, lastID func(*T) string) ([]*T, *PageInfo) {
	if limit <= 0 {
		limit = 10
	}

	info := &PageInfo{}
	if len(rows) > limit {
		rows = rows[:limit]
		info.HasMore = true
	}
	if len(rows) > 0 {
		info.NextCursor = EncodeCursor(Cursor{ID: lastID(rows[len(rows)-1])})
	}
	return rows, info
}
