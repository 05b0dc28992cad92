package source

import (
	"os"
	"path/filepath"
	"unicode/utf8"
)

// LoadDir walks root and builds a Files set of every regular, UTF-8
// readable file, keyed by its path relative to root (spec §6: "a mapping
// from relative path to UTF-8 content"). Binary or non-UTF-8 files are
// skipped, matching the resolver's "absent" treatment of such files.
func LoadDir(root string) (Files, error) {
	files := make(Files)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		if !utf8.Valid(data) {
			return nil
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
