package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInputs(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCollectInputs(t *testing.T) {
	t.Run("corpus layout", func(t *testing.T) {
		dir := t.TempDir()
		writeInputs(t, filepath.Join(dir, "crashes"), "id_2", ".state")
		writeInputs(t, filepath.Join(dir, "non_crashes"), "id_1")
		writeInputs(t, filepath.Join(dir, "queue"), "id_0")

		got, err := collectInputs(dir)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{
			filepath.Join(dir, "crashes", "id_2"),
			filepath.Join(dir, "non_crashes", "id_1"),
		}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("flat directory", func(t *testing.T) {
		dir := t.TempDir()
		writeInputs(t, dir, "b", "a")
		if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
			t.Fatal(err)
		}

		got, err := collectInputs(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || filepath.Base(got[0]) != "a" || filepath.Base(got[1]) != "b" {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		if _, err := collectInputs(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestDedupInputs(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{"a": "AAAA", "b": "BBBB", "c": "AAAA"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	paths := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c")}

	got, dups, err := dedupInputs(paths)
	if err != nil {
		t.Fatal(err)
	}
	if dups != 1 || len(got) != 2 || got[0] != paths[0] || got[1] != paths[1] {
		t.Fatalf("got %v (%d duplicates)", got, dups)
	}
}
