package ingestion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInferMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		file  RawDocument
		title string
	}{
		// ── Plain names ─────────────────────────────────────────────────
		{
			name:  "text file",
			file:  RawDocument{Path: "/data/raw/notes.txt", RelPath: "notes.txt"},
			title: "notes",
		},
		{
			name:  "nested pdf with spaces",
			file:  RawDocument{Path: "/data/raw/reports/Q3 report.pdf", RelPath: "reports/Q3 report.pdf"},
			title: "Q3 report",
		},
		// ── Unusual names ───────────────────────────────────────────────
		{
			name:  "double extension keeps inner dot",
			file:  RawDocument{Path: "/data/raw/export.2024.jsonl", RelPath: "export.2024.jsonl"},
			title: "export.2024",
		},
		{
			name:  "no extension",
			file:  RawDocument{Path: "/data/raw/README", RelPath: "README"},
			title: "README",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tt.file)
			if got.Title != tt.title {
				t.Errorf("Title: want %q, got %q", tt.title, got.Title)
			}
			if got.DocID != DocID(tt.file.RelPath) {
				t.Errorf("DocID: want %q, got %q", DocID(tt.file.RelPath), got.DocID)
			}
		})
	}
}

func TestDocID_StableAndDistinct(t *testing.T) {
	t.Parallel()

	a1 := DocID("reports/a.txt")
	a2 := InferMetadata(RawDocument{Path: "/elsewhere/reports/a.txt", RelPath: "reports/a.txt"}).DocID
	if a1 != a2 {
		t.Errorf("same relative path must give the same id: %s vs %s", a1, a2)
	}
	if a1 == DocID("reports/b.txt") {
		t.Error("different paths must give different ids")
	}
	if len(a1) != 36 {
		t.Errorf("want a canonical UUID, got %q", a1)
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, p := range []string{
		"b.txt",
		"a.md",
		"sub/c.json",
		".hidden.txt",
		".git/config",
	} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	files, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"a.md", "b.txt", "sub/c.json"}
	if len(files) != len(want) {
		t.Fatalf("want %d files, got %d: %+v", len(want), len(files), files)
	}
	for i, w := range want {
		if files[i].RelPath != w {
			t.Errorf("files[%d]: want %s, got %s", i, w, files[i].RelPath)
		}
	}
}

func TestDiscover_SingleFileAndMissingRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := filepath.Join(root, "only.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	files, err := Discover(path)
	if err != nil {
		t.Fatalf("Discover file: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "only.txt" {
		t.Errorf("unexpected result: %+v", files)
	}

	if _, err := Discover(filepath.Join(root, "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}
