package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// TrackedFile is one concrete file to tail, after glob expansion.
type TrackedFile struct {
	Path    string
	Pattern string // the files key this path came from
	FileConfig
}

// Tracked resolves the files table into absolute paths. Keys containing glob
// meta characters are expanded (doublestar syntax, "**" allowed) against the
// filesystem at call time; literal keys are kept even if the file does not
// exist yet. When two keys resolve to the same path the lexically first key
// wins.
func (c *Config) Tracked() ([]TrackedFile, error) {
	seen := make(map[string]string)
	var out []TrackedFile

	for _, key := range sortedKeys(c.Files) {
		fc := c.Files[key]

		abs, err := filepath.Abs(key)
		if err != nil {
			return nil, fmt.Errorf("files.%q: %w", key, err)
		}

		paths := []string{abs}
		if hasMeta(key) {
			paths, err = doublestar.FilepathGlob(abs, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("files.%q: expanding pattern: %w", key, err)
			}
			if len(paths) == 0 {
				slog.Warn("file pattern matched nothing", "pattern", key)
			}
			sort.Strings(paths)
		}

		for _, p := range paths {
			p = filepath.Clean(p)
			if prev, dup := seen[p]; dup {
				slog.Warn("file matched by more than one entry, keeping first",
					"path", p, "kept", prev, "ignored", key)
				continue
			}
			seen[p] = key
			out = append(out, TrackedFile{Path: p, Pattern: key, FileConfig: fc})
		}
	}

	return out, nil
}

func hasMeta(path string) bool {
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
