// Package importer installs catalogs and model directories into the
// curricula data tree. Existing files are never overwritten: identical files
// are skipped and differing ones are stored beside the original.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExcludes are skipped on every import.
var DefaultExcludes = []string{".DS_Store", "Thumbs.db", "*.tmp", "*.lock", ".*.lock", "*~"}

// Conflict is an incoming file whose content differs from the installed one.
type Conflict struct {
	Installed string
	Incoming  string
}

// Result summarizes one import. An entry is a top-level child of the source:
// a catalog file or a model directory.
type Result struct {
	Conflicts []Conflict
	Copied    int
	Skipped   int

	EntriesCopied   []string
	EntriesSkipped  []string
	EntriesConflict []string
}

// Import copies src into dst. label names conflict copies:
// subjects.csv becomes subjects.incoming-<label>.csv.
func Import(src, dst, label string, excludes []string) (*Result, error) {
	st, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("cannot import %s: %w", src, err)
	}
	if !st.IsDir() {
		return importFile(src, dst, label)
	}

	res := &Result{}
	copied := map[string]bool{}
	skipped := map[string]bool{}
	conflicted := map[string]bool{}

	err = filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if excluded(rel, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		entry := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		switch outcome, err := place(path, target, label, res); {
		case err != nil:
			return err
		case outcome == placedCopy:
			copied[entry] = true
		case outcome == placedSkip:
			skipped[entry] = true
		case outcome == placedConflict:
			conflicted[entry] = true
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	for e := range copied {
		res.EntriesCopied = append(res.EntriesCopied, e)
	}
	for e := range conflicted {
		res.EntriesConflict = append(res.EntriesConflict, e)
	}
	for e := range skipped {
		if !copied[e] && !conflicted[e] {
			res.EntriesSkipped = append(res.EntriesSkipped, e)
		}
	}
	sortStrings(res.EntriesCopied, res.EntriesConflict, res.EntriesSkipped)
	slog.Debug("import finished", "src", src, "dst", dst, "copied", res.Copied, "skipped", res.Skipped, "conflicts", len(res.Conflicts))
	return res, nil
}

func importFile(src, dstDir, label string) (*Result, error) {
	res := &Result{}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Base(src)
	outcome, err := place(src, filepath.Join(dstDir, name), label, res)
	if err != nil {
		return res, err
	}
	switch outcome {
	case placedCopy:
		res.EntriesCopied = []string{name}
	case placedSkip:
		res.EntriesSkipped = []string{name}
	case placedConflict:
		res.EntriesConflict = []string{name}
	}
	return res, nil
}

type placement int

const (
	placedCopy placement = iota
	placedSkip
	placedConflict
)

func place(src, target, label string, res *Result) (placement, error) {
	if _, err := os.Stat(target); err == nil {
		same, err := sameContent(src, target)
		if err != nil {
			return 0, err
		}
		if same {
			res.Skipped++
			return placedSkip, nil
		}
		incoming := IncomingPath(target, label)
		if err := copyFile(src, incoming); err != nil {
			return 0, fmt.Errorf("copy %s -> %s: %w", src, incoming, err)
		}
		res.Conflicts = append(res.Conflicts, Conflict{Installed: target, Incoming: incoming})
		return placedConflict, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	if err := copyFile(src, target); err != nil {
		return 0, fmt.Errorf("copy %s -> %s: %w", src, target, err)
	}
	res.Copied++
	return placedCopy, nil
}

// IncomingPath inserts .incoming-<label> before the extension of path.
func IncomingPath(path, label string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".incoming-" + label + ext
}

func excluded(rel string, patterns []string) bool {
	name := filepath.Base(rel)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func sameContent(a, b string) (bool, error) {
	ha, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	hb, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sortStrings(lists ...[]string) {
	for _, l := range lists {
		sort.Strings(l)
	}
}
