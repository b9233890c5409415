package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestCursorTokenRoundTrip(t *testing.T) {
	at := time.Date(2024, time.June, 12, 8, 30, 15, 123456789, time.UTC)
	token := EncodeToken(Cursor{SortKey: at, DocID: "rev_0042"})
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !cursor.SortKey.Equal(at) {
		t.Fatalf("sort key mismatch: got %s want %s", cursor.SortKey, at)
	}
	if cursor.DocID != "rev_0042" {
		t.Fatalf("doc id mismatch: got %q", cursor.DocID)
	}
}

func TestDecodeTokenEmptyIsFirstPage(t *testing.T) {
	cursor, err := DecodeToken("   ")
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !cursor.SortKey.IsZero() || cursor.DocID != "" {
		t.Fatalf("expected zero cursor, got %+v", cursor)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "not base64!"},
		{name: "not json", token: "bm90LWpzb24"},
		{name: "empty object", token: "e30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeToken(tc.token); !errors.Is(err, ErrInvalidPageToken) {
				t.Fatalf("expected ErrInvalidPageToken, got %v", err)
			}
		})
	}
}

func TestClampPageSize(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultPageSize},
		{in: -3, want: DefaultPageSize},
		{in: 25, want: 25},
		{in: 500, want: MaxPageSize},
	}
	for _, tc := range cases {
		if got := ClampPageSize(tc.in); got != tc.want {
			t.Fatalf("ClampPageSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
