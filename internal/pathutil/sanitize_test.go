package pathutil

import "testing"

func TestSanitizeTraversal(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/a/b/c", "a/b/c"},
		{"a/../b", "b"},
		{"../../../etc/passwd", "etc/passwd"},
		{"a/b/../../c", "c"},
		{"./a/./b", "a/b"},
		{"", "."},
		{"C:/windows", "windows"},
		{"a\\b\\c", "a/b/c"},
	}
	for _, c := range cases {
		got, err := Sanitize(c.in, true)
		if err != nil {
			t.Fatalf("Sanitize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeNeverEscapesPrefix(t *testing.T) {
	got, err := Sanitize("../../../../../../../../etc/passwd", true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "etc/passwd" {
		t.Errorf("got %q, want a relative path with no leading ..", got)
	}
}

func TestSanitizeHiddenRejected(t *testing.T) {
	if _, err := Sanitize("a/.git/config", false); err == nil {
		t.Fatal("expected rejection of hidden component")
	}
	got, err := Sanitize("a/.git/config", true)
	if err != nil || got != "a/.git/config" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestSanitizeInvalidUTF8(t *testing.T) {
	if _, err := Sanitize("a/\xff\xfe/b", true); err == nil {
		t.Fatal("expected rejection of invalid UTF-8")
	}
}

func TestHasPrefixDir(t *testing.T) {
	if !HasPrefixDir("some/dir/x", "some/dir") {
		t.Error("expected match")
	}
	if !HasPrefixDir("some/dir", "some/dir") {
		t.Error("expected exact match")
	}
	if HasPrefixDir("somewhere/else", "some/dir") {
		t.Error("expected no match")
	}
	if !HasPrefixDir("anything", "") {
		t.Error("empty prefix matches everything")
	}
}
