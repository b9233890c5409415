package firestore

import (
	"testing"
	"time"

	domain "github.com/solestride/api/internal/domain"
)

func TestNormalizePageRequest(t *testing.T) {
	cases := []struct {
		name string
		in   domain.PageRequest
		want domain.PageRequest
	}{
		{name: "defaults", in: domain.PageRequest{}, want: domain.PageRequest{Page: 1, PageSize: defaultPageSize}},
		{name: "negative page", in: domain.PageRequest{Page: -3, PageSize: 10}, want: domain.PageRequest{Page: 1, PageSize: 10}},
		{name: "oversized page size", in: domain.PageRequest{Page: 2, PageSize: 500}, want: domain.PageRequest{Page: 2, PageSize: maxPageSize}},
		{name: "within bounds", in: domain.PageRequest{Page: 4, PageSize: 25}, want: domain.PageRequest{Page: 4, PageSize: 25}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizePageRequest(tc.in)
			if got != tc.want {
				t.Fatalf("normalizePageRequest(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	items := []string{"a", "b", "c"}

	page := newPage(items, domain.PageRequest{Page: 2, PageSize: 3}, 7)
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", page.TotalPages)
	}
	if !page.HasNext || !page.HasPrev {
		t.Fatalf("expected middle page to have neighbours, got next=%v prev=%v", page.HasNext, page.HasPrev)
	}

	last := newPage(items, domain.PageRequest{Page: 3, PageSize: 3}, 7)
	if last.HasNext {
		t.Fatalf("expected last page to have no next page")
	}

	empty := newPage([]string(nil), domain.PageRequest{Page: 1, PageSize: 20}, 0)
	if empty.TotalPages != 0 || empty.HasNext || empty.HasPrev {
		t.Fatalf("expected empty result metadata, got %+v", empty)
	}
}

func TestCursorTokenRoundTrip(t *testing.T) {
	at := time.Date(2026, time.March, 14, 9, 26, 53, 589000000, time.UTC)
	token := encodeCursorToken(at, "rev_0042")

	gotAt, gotID, err := decodeCursorToken(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if !gotAt.Equal(at) {
		t.Fatalf("expected timestamp %s, got %s", at, gotAt)
	}
	if gotID != "rev_0042" {
		t.Fatalf("expected document id rev_0042, got %s", gotID)
	}

	if _, _, err := decodeCursorToken("not base64!"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, _, err := decodeCursorToken("bm8tc2VwYXJhdG9y"); err == nil {
		t.Fatalf("expected error for token carrying no cursor payload")
	}
}
