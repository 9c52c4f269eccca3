package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	EventsDirName  = "events"
	TmpDirName     = "tmp"
	CursorsDirName = "cursors"
	SeqFileName    = "seq"
	DBFileName     = "chatbus.db"
	ConfigFileName = "chatbus.yaml"
)

// Root is the shared storage root every participating process points at.
type Root struct {
	Path string
}

// EventsDir holds published event records.
func (r Root) EventsDir() string { return filepath.Join(r.Path, EventsDirName) }

// TmpDir is the staging area for write-then-rename.
func (r Root) TmpDir() string { return filepath.Join(r.Path, TmpDirName) }

// CursorsDir holds one cursor file per process.
func (r Root) CursorsDir() string { return filepath.Join(r.Path, CursorsDirName) }

// SeqPath is the sequence counter file.
func (r Root) SeqPath() string { return filepath.Join(r.Path, SeqFileName) }

// DBPath is the default SQLite path for the persistence layer.
func (r Root) DBPath() string { return filepath.Join(r.Path, DBFileName) }

// DefaultRootDir returns $XDG_STATE_HOME/chatbus, falling back to ~/.local/state/chatbus.
func DefaultRootDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "chatbus"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "chatbus"), nil
}

// InitRoot creates the storage layout at dir. Existing layouts are left
// untouched unless force is set, in which case the database is removed.
func InitRoot(dir string, force bool) (Root, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, err
	}
	root := Root{Path: path}

	if info, err := os.Stat(root.EventsDir()); err == nil && info.IsDir() && !force {
		return Root{}, fmt.Errorf("already initialized at %s. Use --force to reinitialize", path)
	}

	for _, d := range []string{root.Path, root.EventsDir(), root.TmpDir(), root.CursorsDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Root{}, err
		}
	}
	EnsureGitignore(root.Path)

	if force {
		if err := os.Remove(root.DBPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Root{}, err
		}
	}
	return root, nil
}

// OpenRoot resolves an existing storage root, creating any missing
// subdirectories of an initialized layout.
func OpenRoot(dir string) (Root, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Root{}, fmt.Errorf("storage root %s not found. Run 'chatbus init' first", path)
		}
		return Root{}, err
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("storage root %s is not a directory", path)
	}
	root := Root{Path: path}
	for _, d := range []string{root.EventsDir(), root.TmpDir(), root.CursorsDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Root{}, err
		}
	}
	return root, nil
}

// EnsureGitignore ensures <root>/.gitignore ignores the sqlite files.
func EnsureGitignore(dir string) {
	gitignore := filepath.Join(dir, ".gitignore")
	entries := []string{"*.db", "*.db-wal", "*.db-shm", TmpDirName + "/"}

	data, err := os.ReadFile(gitignore)
	if err != nil {
		_ = os.WriteFile(gitignore, []byte(joinLines(entries)), 0o644)
		return
	}
	content := string(data)

	lines := map[string]bool{}
	for _, line := range splitLines(content) {
		lines[line] = true
	}

	var missing []string
	for _, entry := range entries {
		if !lines[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return
	}
	if len(content) > 0 && content[len(content)-1] != '\n' {
		content += "\n"
	}
	content += joinLines(missing)
	_ = os.WriteFile(gitignore, []byte(content), 0o644)
}

func splitLines(value string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(value); i++ {
		if value[i] == '\n' {
			lines = append(lines, value[start:i])
			start = i + 1
		}
	}
	if start < len(value) {
		lines = append(lines, value[start:])
	}
	return lines
}

func joinLines(values []string) string {
	out := ""
	for _, v := range values {
		out += v + "\n"
	}
	return out
}
