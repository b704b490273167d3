package index

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/gitignore"
)

// dataDirName is always excluded from scans, regardless of ignore files —
// the store's own working directory is never itself indexable content.
const dataDirName = ".data"

// scanFile is one discovered indexable source file.
type scanFile struct {
	Path string // workspace-relative, POSIX-style
	Abs  string
}

// scanWorkspace walks root honoring .gitignore and .ragrepignore
// (merged, §4.4), always excluding hidden directories and dataDirName,
// keeping only files whose extension is in chunk's supported set.
func scanWorkspace(root string, registry *chunk.LanguageRegistry) ([]scanFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	matcher, err := loadIgnoreMatcher(absRoot)
	if err != nil {
		return nil, err
	}

	exts := make(map[string]bool)
	for _, e := range registry.SupportedExtensions() {
		exts[e] = true
	}

	var files []scanFile
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("scan: skipping unreadable path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			base := filepath.Base(relPath)
			if base == dataDirName || (strings.HasPrefix(base, ".") && base != ".") {
				return fs.SkipDir
			}
			if matcher.Match(relPath, true) {
				return fs.SkipDir
			}
			return nil
		}

		if matcher.Match(relPath, false) {
			return nil
		}

		ext := filepath.Ext(relPath)
		if !exts[ext] {
			return nil
		}

		files = append(files, scanFile{Path: relPath, Abs: path})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// loadIgnoreMatcher merges <root>/.gitignore, <root>/.ragrepignore, and
// <root>/.data/ignore, spec §4.4's "merged effect of a repository ignore
// file and a tool-specific ignore file" plus the §6.1 persisted-state
// ignore file.
func loadIgnoreMatcher(absRoot string) (*gitignore.Matcher, error) {
	m := gitignore.New()
	for _, rel := range []string{".gitignore", ".ragrepignore", filepath.Join(dataDirName, "ignore")} {
		path := filepath.Join(absRoot, rel)
		if err := m.AddFromFile(path, ""); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return m, nil
}
