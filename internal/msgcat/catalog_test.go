package msgcat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("errors.not_your_turn", "x"); got != "Not your turn" {
		t.Fatalf("got %q", got)
	}
	if got := c.Text("errors.nope", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
	s, err := c.Render("errors.method_not_allowed", map[string]string{"Method": "GET", "Path": "/api/game/move"})
	if err != nil || s != "GET is not allowed on /api/game/move" {
		t.Fatalf("Render = %q, %v", s, err)
	}
	if _, err := c.Render("errors.method_not_allowed", map[string]string{"Method": "GET"}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("errors:\n  illegal_move: \"Illegal!\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("errors.illegal_move", ""); got != "Illegal!" {
		t.Fatalf("got %q", got)
	}
	if got := c.Text("errors.not_your_turn", ""); got != "Not your turn" {
		t.Fatalf("default lost: %q", got)
	}
}

func TestDuplicateOverrideKey(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("errors:\n  internal: \"boom\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("err = %v", err)
	}
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	if c.Text("errors.internal", "fb") != "fb" {
		t.Fatal("nil catalog should fall back")
	}
}

func TestWatchReloadsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	if err := os.WriteFile(path, []byte("errors:\n  illegal_move: \"one\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Watch(ctx, dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("errors:\n  illegal_move: \"two\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for c.Text("errors.illegal_move", "") != "two" {
		if time.Now().After(deadline) {
			t.Fatalf("catalog not reloaded: %q", c.Text("errors.illegal_move", ""))
		}
		time.Sleep(20 * time.Millisecond)
	}

	// a broken file swapped in keeps the last good messages
	tmp := filepath.Join(dir, "override.tmp")
	if err := os.WriteFile(tmp, []byte("errors: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := c.Text("errors.illegal_move", ""); got != "two" {
		t.Fatalf("broken edit replaced messages: %q", got)
	}
}
