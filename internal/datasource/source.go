// Package datasource locates the clockmail database and watches the files
// tcards reads for changes.
package datasource

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daviddao/clockmail/pkg/store"
)

const (
	// Dir is the directory clockmail and tcards keep their files in.
	Dir       = ".clockmail"
	defaultDB = ".clockmail/clockmail.db"
)

// Discover finds the clockmail database path.
// Priority: explicit > CLOCKMAIL_DB env var > .clockmail/clockmail.db in CWD > walk up parents.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("--db %q: %w", explicit, err)
		}
		return filepath.Abs(explicit)
	}
	if env := os.Getenv("CLOCKMAIL_DB"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
		return "", fmt.Errorf("CLOCKMAIL_DB=%q: %w", env, os.ErrNotExist)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, defaultDB)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no clockmail database found (looked for %s)", defaultDB)
}

// Open discovers and opens the clockmail store.
func Open(explicit string) (*store.Store, string, error) {
	path, err := Discover(explicit)
	if err != nil {
		return nil, "", err
	}
	s, err := store.New(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	return s, path, nil
}

// Root returns the project directory of dbPath: the parent of its
// .clockmail directory, or the directory holding the file otherwise.
func Root(dbPath string) string {
	dir := filepath.Dir(dbPath)
	if filepath.Base(dir) == Dir {
		return filepath.Dir(dir)
	}
	return dir
}
