package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitRootCreatesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bus")
	root, err := InitRoot(dir, false)
	if err != nil {
		t.Fatalf("init root: %v", err)
	}
	for _, d := range []string{root.EventsDir(), root.TmpDir(), root.CursorsDir()} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("stat %s: %v", d, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %s to be a directory", d)
		}
	}
	data, err := os.ReadFile(filepath.Join(root.Path, ".gitignore"))
	if err != nil {
		t.Fatalf("read gitignore: %v", err)
	}
	if !strings.Contains(string(data), "*.db") {
		t.Fatalf("expected sqlite ignores, got %q", string(data))
	}
}

func TestInitRootRefusesReinitWithoutForce(t *testing.T) {
	dir := t.TempDir()
	if _, err := InitRoot(dir, false); err != nil {
		t.Fatalf("init root: %v", err)
	}
	if _, err := InitRoot(dir, false); err == nil {
		t.Fatalf("expected error on second init")
	}
	if _, err := InitRoot(dir, true); err != nil {
		t.Fatalf("forced init: %v", err)
	}
}

func TestOpenRootMissing(t *testing.T) {
	if _, err := OpenRoot(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestParseAge(t *testing.T) {
	cases := map[string]time.Duration{
		"90m": 90 * time.Minute,
		"2h":  2 * time.Hour,
		"2d":  48 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for input, want := range cases {
		got, err := ParseAge(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %v, got %v", input, want, got)
		}
	}
	for _, bad := range []string{"", "d", "x3d", "-1h"} {
		if _, err := ParseAge(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestGenerateGUID(t *testing.T) {
	id, err := GenerateGUID("msg-")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(id, "msg-") || len(id) != len("msg-")+guidLength {
		t.Fatalf("unexpected guid %q", id)
	}
}
