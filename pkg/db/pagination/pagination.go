package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10"`
}

// Normalize clamps Limit into 1..MaxLimit.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// Page trims data fetched with limit+1 rows to limit and reports whether more
// rows follow.
func Page[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo, error) {
	if len(data) <= limit {
		return data, &PageInfo{HasMore: false}, nil
	}

	data = data[:limit]
	next, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return nil, nil, err
	}
	return data, &PageInfo{HasMore: true, NextCursor: next}, nil
}
