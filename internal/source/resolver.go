// Package source resolves a path as it appears in a profile against a set
// of available source files, including an optional subdirectory prefix
// (spec §4.2).
package source

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no resolution strategy matches (spec §7,
// ResolveError::NotFound). Callers treat it as "absent", not fatal.
var ErrNotFound = errors.New("source: file not found")

// Files is a mapping from relative path to UTF-8 file content, as accepted
// from the caller (spec §6: "a mapping from relative path to UTF-8
// content").
type Files map[string]string

// Resolver resolves profile-reported paths against a Files set, optionally
// rooted under a subdirectory prefix.
type Resolver struct {
	files  Files
	subdir string
}

// New builds a Resolver. subdir may be empty.
func New(files Files, subdir string) *Resolver {
	return &Resolver{files: files, subdir: strings.Trim(subdir, "/")}
}

// Resolve returns the content for profile path p, trying strategies in
// order and stopping at the first hit (spec §4.2):
//  1. exact match on p
//  2. subdirectory-prefixed suffix/basename probes
//  3. basename/suffix match against any file in the set
func (r *Resolver) Resolve(p string) (string, error) {
	if content, ok := r.files[p]; ok {
		return content, nil
	}

	if r.subdir != "" {
		if content, ok := r.probeSubdir(p); ok {
			return content, nil
		}
	}

	if content, ok := r.probeAnyKey(p); ok {
		return content, nil
	}

	return "", ErrNotFound
}

// probeSubdir tries "D/suffix(P,k)" for k from full P down to 2 path
// components, then "D/basename(P)" directly, then the same two probes
// again with a further "src/" prefix.
func (r *Resolver) probeSubdir(p string) (string, bool) {
	parts := splitPath(p)

	tryPrefixes := []string{r.subdir, r.subdir + "/src"}
	for _, prefix := range tryPrefixes {
		for k := len(parts); k >= 2; k-- {
			suffix := strings.Join(parts[len(parts)-k:], "/")
			candidate := prefix + "/" + suffix
			if content, ok := r.files[candidate]; ok {
				return content, true
			}
		}
		base := prefix + "/" + basename(p)
		if content, ok := r.files[base]; ok {
			return content, true
		}
	}
	return "", false
}

// probeAnyKey matches any key whose basename equals basename(p), then any
// key whose last-k path components equal p's last-k for some k >= 2.
func (r *Resolver) probeAnyKey(p string) (string, bool) {
	pBase := basename(p)
	for key, content := range r.files {
		if basename(key) == pBase {
			return content, true
		}
	}

	pParts := splitPath(p)
	for k := len(pParts); k >= 2; k-- {
		pSuffix := strings.Join(pParts[len(pParts)-k:], "/")
		for key, content := range r.files {
			keyParts := splitPath(key)
			if len(keyParts) < k {
				continue
			}
			keySuffix := strings.Join(keyParts[len(keyParts)-k:], "/")
			if keySuffix == pSuffix {
				return content, true
			}
		}
	}
	return "", false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func basename(p string) string {
	parts := splitPath(p)
	if len(parts) == 0 {
		return p
	}
	return parts[len(parts)-1]
}
