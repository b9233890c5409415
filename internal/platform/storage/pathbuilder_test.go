package storage

import "testing"

func TestCatalogImageKey(t *testing.T) {
	key, err := CatalogImageKey("01J8ZK4D2N9Q", "PNG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "assets/catalog/01j8zk4d2n9q.png"
	if key != expected {
		t.Fatalf("expected %s, got %s", expected, key)
	}
}

func TestCatalogImageKeyRejectsInvalidSegments(t *testing.T) {
	cases := []struct {
		name string
		id   string
		ext  string
	}{
		{name: "empty id", id: "", ext: "png"},
		{name: "traversal id", id: "../bad", ext: "png"},
		{name: "slash in id", id: "a/b", ext: "png"},
		{name: "empty extension", id: "img01", ext: "  "},
		{name: "dot-only extension", id: "img01", ext: "."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CatalogImageKey(tc.id, tc.ext); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestIsCatalogImageKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{key: "assets/catalog/01j8zk4d2n9q.png", want: true},
		{key: "assets/catalog/", want: false},
		{key: "assets/catalog/nested/object.png", want: false},
		{key: "assets/other/object.png", want: false},
		{key: "assets/catalog/../secret", want: false},
		{key: "", want: false},
	}
	for _, tc := range cases {
		if got := IsCatalogImageKey(tc.key); got != tc.want {
			t.Fatalf("IsCatalogImageKey(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}
