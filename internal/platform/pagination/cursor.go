// Package pagination provides opaque cursor tokens for keyset listings
// ordered by a timestamp with a document-ID tiebreak.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPageSize applies when the caller does not request a size.
	DefaultPageSize = 20
	// MaxPageSize caps a single listing request.
	MaxPageSize = 100
)

// ErrInvalidPageToken flags tokens that cannot be decoded back into a cursor.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// Cursor marks the position after the last document of a page.
type Cursor struct {
	SortKey time.Time `json:"k"`
	DocID   string    `json:"id"`
}

// EncodeToken serialises the cursor into a URL-safe opaque page token.
func EncodeToken(cursor Cursor) string {
	payload, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeToken parses a token produced by EncodeToken. An empty token yields a
// zero cursor so callers can treat the first page uniformly.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.SortKey.IsZero() && strings.TrimSpace(cursor.DocID) == "" {
		return Cursor{}, fmt.Errorf("%w: empty cursor", ErrInvalidPageToken)
	}
	cursor.SortKey = cursor.SortKey.UTC()
	return cursor, nil
}

// ClampPageSize normalises a requested page size into the allowed range.
func ClampPageSize(size int) int {
	if size < 1 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}
