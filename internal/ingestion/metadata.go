package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sntprz/ai-assistant/internal/extract"
)

// RawDocument is one candidate file found under the ingestion root.
type RawDocument struct {
	// Path is the absolute or root-joined path used to read the file.
	Path string

	// RelPath is the slash-separated path relative to the ingestion root.
	// It is the basis of the document identity.
	RelPath string

	// Content and Format are filled in when the file is read.
	Content []byte
	Format  extract.Format
}

// FileMetadata holds the identity fields derived from a file's location.
type FileMetadata struct {
	// DocID is stable for a given root-relative path.
	DocID string

	// Title is the base name without its extension ("Q3 report" for
	// "reports/Q3 report.pdf").
	Title string
}

// InferMetadata derives the document identity for f. Re-ingesting the same
// tree always yields the same DocID for the same file, whatever the
// absolute location of the root.
func InferMetadata(f RawDocument) FileMetadata {
	base := filepath.Base(f.Path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if title == "" {
		title = base
	}
	return FileMetadata{
		DocID: DocID(f.RelPath),
		Title: title,
	}
}

// DocID returns the UUIDv5 identity of the document at relPath.
func DocID(relPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file:"+filepath.ToSlash(relPath))).String()
}

// Discover lists every regular file under root in lexical order. Hidden
// files and directories (leading ".") are ignored. root may also be a single
// file, in which case it is the only result.
func Discover(root string) ([]RawDocument, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []RawDocument{{Path: root, RelPath: filepath.Base(root)}}, nil
	}

	var files []RawDocument
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, RawDocument{Path: path, RelPath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
