package testing

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// FileAssertions checks the state of an output directory.
type FileAssertions struct {
	t       *testing.T
	baseDir string
}

// NewFileAssertions creates a new file assertions helper
func NewFileAssertions(t *testing.T, baseDir string) *FileAssertions {
	return &FileAssertions{t: t, baseDir: baseDir}
}

func (fa *FileAssertions) path(rel string) string {
	return filepath.Join(fa.baseDir, filepath.FromSlash(rel))
}

// AssertFileExists validates that a file exists
func (fa *FileAssertions) AssertFileExists(rel string) *FileAssertions {
	fa.t.Helper()
	if _, err := os.Stat(fa.path(rel)); err != nil {
		fa.t.Errorf("expected file %s to exist: %v", rel, err)
	}
	return fa
}

// AssertFileNotExists validates that a file does not exist
func (fa *FileAssertions) AssertFileNotExists(rel string) *FileAssertions {
	fa.t.Helper()
	if _, err := os.Stat(fa.path(rel)); err == nil {
		fa.t.Errorf("expected %s to not exist", rel)
	}
	return fa
}

// AssertFileContains validates that a file contains expected content
func (fa *FileAssertions) AssertFileContains(rel, expected string) *FileAssertions {
	fa.t.Helper()
	content, err := os.ReadFile(fa.path(rel))
	if err != nil {
		fa.t.Errorf("read %s: %v", rel, err)
		return fa
	}
	if !strings.Contains(string(content), expected) {
		fa.t.Errorf("expected %s to contain %q\nactual content:\n%s", rel, expected, content)
	}
	return fa
}

// AssertFileNotContains validates that a file does not contain text
func (fa *FileAssertions) AssertFileNotContains(rel, text string) *FileAssertions {
	fa.t.Helper()
	content, err := os.ReadFile(fa.path(rel))
	if err != nil {
		fa.t.Errorf("read %s: %v", rel, err)
		return fa
	}
	if strings.Contains(string(content), text) {
		fa.t.Errorf("expected %s to not contain %q", rel, text)
	}
	return fa
}

// Tree returns every regular file below rel as sorted slash paths relative to rel.
func (fa *FileAssertions) Tree(rel string) []string {
	fa.t.Helper()
	root := fa.path(rel)
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		r, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(r))
		return nil
	})
	if err != nil {
		fa.t.Fatalf("walk %s: %v", rel, err)
	}
	sort.Strings(files)
	return files
}

// GetFileContent reads and returns the content of a file
func (fa *FileAssertions) GetFileContent(rel string) string {
	fa.t.Helper()
	content, err := os.ReadFile(fa.path(rel))
	if err != nil {
		fa.t.Fatalf("read %s: %v", rel, err)
	}
	return string(content)
}
