package artifact

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"notes.pdf", "notes.pdf"},
		{"../../etc/passwd", "passwd"},
		{"lecture 3 (final).txt", "lecture_3__final_.txt"},
		{"", "upload"},
		{"..", "upload"},
		{"äöü.md", "___.md"},
	}
	for _, tc := range tests {
		if got := NormalizeFilename(tc.in); got != tc.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildPath(t *testing.T) {
	got := BuildPath("/data/uploads", "abc123")
	want := filepath.Join("/data/uploads", "artifact-abc123.json")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestValidatePath_Accepts(t *testing.T) {
	root := t.TempDir()

	resolved, err := ValidatePath(root, filepath.Join(root, "artifact-a.json"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.HasPrefix(resolved, root) {
		t.Fatalf("resolved path %q not under root %q", resolved, root)
	}
}

func TestValidatePath_RejectsEscape(t *testing.T) {
	root := t.TempDir()

	tests := []string{
		"/etc/passwd.json",
		filepath.Join(root, "..", "outside.json"),
		filepath.Join(root, "sub", "..", "..", "outside.json"),
	}
	for _, path := range tests {
		if _, err := ValidatePath(root, path); err == nil {
			t.Errorf("expected rejection for %q", path)
		}
	}
}

func TestValidatePath_RejectsNonJSON(t *testing.T) {
	root := t.TempDir()

	if _, err := ValidatePath(root, filepath.Join(root, "artifact-a.txt")); err == nil {
		t.Fatal("expected rejection for non-json suffix")
	}
}

func TestValidatePath_TraversalInsideRootResolves(t *testing.T) {
	root := t.TempDir()

	resolved, err := ValidatePath(root, filepath.Join(root, "sub", "..", "artifact-a.json"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resolved != filepath.Join(root, "artifact-a.json") {
		t.Fatalf("expected cleaned path, got %q", resolved)
	}
}
