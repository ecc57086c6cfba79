package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor points just past the last item of the previous page.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// Page is one page of a newest-first listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

var ErrInvalidCursor = domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")

// EncodeCursor returns a URL-safe cursor for the item with the given id and timestamp.
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor returns nil for an empty cursor.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: parts[0], Timestamp: timestamp}, nil
}

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// NewPage builds a page from up to limit+1 fetched items. The extra item only
// signals that another page exists.
func NewPage[T any](items []T, limit int, key func(T) (string, time.Time)) *Page[T] {
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	if items == nil {
		items = []T{}
	}

	page := &Page[T]{Items: items, HasMore: hasMore}
	if hasMore && len(items) > 0 {
		page.NextCursor = EncodeCursor(key(items[len(items)-1]))
	}
	return page
}
