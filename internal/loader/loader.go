// Package loader expands input paths and reads supported documents.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// Extensions lists the file types the loader can read.
var Extensions = []string{".pdf", ".txt", ".md"}

// ErrUnsupported is returned for files with an extension outside Extensions.
var ErrUnsupported = errors.New("unsupported file type")

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Expand resolves files, directories and glob patterns into a sorted,
// de-duplicated list of supported files. Directories are walked recursively.
func Expand(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, in := range inputs {
		matches, err := filepath.Glob(in)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", in, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", in)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				if !Supported(m) {
					return nil, fmt.Errorf("%s: %w", m, ErrUnsupported)
				}
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && Supported(p) {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk %s: %w", m, err)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Load reads a single document. The document ID is the cleaned path and the
// source is the file name.
func Load(path string) (domain.Document, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = readPDF(path)
	case ".txt", ".md":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	default:
		return domain.Document{}, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	clean := filepath.Clean(path)
	return domain.Document{ID: clean, Path: clean, Content: text}, nil
}

// LoadAll expands inputs and loads every document. Documents with no text
// are skipped and reported in the second return value.
func LoadAll(inputs []string) ([]domain.Document, []string, error) {
	paths, err := Expand(inputs)
	if err != nil {
		return nil, nil, err
	}
	var docs []domain.Document
	var empty []string
	for _, p := range paths {
		doc, err := Load(p)
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(doc.Content) == "" {
			empty = append(empty, p)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, empty, nil
}

func readPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ErrNameCollision is returned by ReplaceDir when two inputs share a base name.
var ErrNameCollision = errors.New("inputs share a file name")

// ReplaceDir replaces the contents of dir with copies of files and returns
// the new paths in input order. Copies are staged next to dir and swapped in
// only after every file was read, so inputs that already live under dir
// survive. Nothing is touched when an input is rejected.
func ReplaceDir(dir string, files []string) ([]string, error) {
	dir = filepath.Clean(dir)
	byName := make(map[string]string, len(files))
	var names []string
	for _, f := range files {
		if !Supported(f) {
			return nil, fmt.Errorf("%s: %w", f, ErrUnsupported)
		}
		f = filepath.Clean(f)
		base := filepath.Base(f)
		if prev, ok := byName[base]; ok {
			if prev == f {
				continue
			}
			return nil, fmt.Errorf("%s and %s: %w", prev, f, ErrNameCollision)
		}
		byName[base] = f
		names = append(names, base)
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", parent, err)
	}
	stage, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-stage-")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", dir, err)
	}
	defer os.RemoveAll(stage)
	for _, name := range names {
		if err := copyFile(byName[name], filepath.Join(stage, name)); err != nil {
			return nil, err
		}
	}
	if err := os.Chmod(stage, 0o755); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.Rename(stage, dir); err != nil {
		return nil, fmt.Errorf("replace %s: %w", dir, err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
