package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathID_normalized(t *testing.T) {
	// Clean path: /foo/bar.jpg and /foo/./bar.jpg should match
	if PathID("/foo/bar.jpg") != PathID("/foo/./bar.jpg") {
		t.Error("paths with . should normalize")
	}
	if PathID("/foo/bar.jpg") == PathID("/foo/baz.jpg") {
		t.Error("different paths should give different IDs")
	}
	if got := PathID("photos/a.jpg"); got != filepath.Join("photos", "a.jpg") {
		t.Errorf("relative path should stay relative: %q", got)
	}
}

func TestContentID(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	c := filepath.Join(dir, "c.jpg")
	for path, content := range map[string]string{a: "same", b: "same", c: "other"} {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	idA, err := ContentID(a)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(idA, hashPrefix) || len(idA) != len(hashPrefix)+64 {
		t.Errorf("unexpected id format: %q", idA)
	}
	idB, _ := ContentID(b)
	idC, _ := ContentID(c)
	if idA != idB {
		t.Error("identical contents should share an id")
	}
	if idA == idC {
		t.Error("different contents should differ")
	}
	if _, err := ContentID(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFunc(t *testing.T) {
	fn, err := Func(SchemePath)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := fn("/x/y.jpg"); id != "/x/y.jpg" {
		t.Errorf("path scheme: got %q", id)
	}
	if _, err := Func(SchemeHash); err != nil {
		t.Fatal(err)
	}
	if _, err := Func("uuid"); err == nil {
		t.Error("expected error for unknown scheme")
	}
}
