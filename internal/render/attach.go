package render

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandAttachments resolves a comma or semicolon separated list of
// path specs into existing regular files. Each spec may be a literal
// path or a glob pattern. Expansion happens at render time so files
// added or moved after the contact list was loaded are honored.
// Patterns that match nothing are returned separately; they are logged
// by the caller but never fail a send.
func ExpandAttachments(spec string) (files, unmatched []string) {
	if spec == "" {
		return nil, nil
	}

	parts := strings.Split(strings.ReplaceAll(spec, ";", ","), ",")
	seen := make(map[string]bool)
	for _, pat := range parts {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}

		matches, err := filepath.Glob(pat)
		if err != nil || len(matches) == 0 {
			unmatched = append(unmatched, pat)
			continue
		}
		sort.Strings(matches)

		found := false
		for _, m := range matches {
			if fi, err := os.Stat(m); err != nil || !fi.Mode().IsRegular() {
				continue
			}
			found = true
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
		if !found {
			unmatched = append(unmatched, pat)
		}
	}

	return files, unmatched
}

// langDirAttachments lists every regular file under dir, sorted.
func langDirAttachments(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	var files []string
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	return files
}
