package warfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shinobi_wars.json")

	save := SaveV1{
		Version: Version,
		Wars:    map[string][]string{"a": {"b", "c"}},
		Starts:  map[string]int64{"a:b": 1111, "a:c": 2222},
	}
	if err := Write(path, save); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.V1 == nil {
		t.Fatalf("expected versioned save")
	}
	if got := f.V1.Starts["a:c"]; got != 2222 {
		t.Fatalf("start a:c: got %d", got)
	}
	if got := len(f.V1.Wars["a"]); got != 2 {
		t.Fatalf("targets for a: got %d", got)
	}
}

func TestReadLegacyAndMigrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shinobi_wars.json")
	if err := os.WriteFile(path, []byte(`{"A": ["B"]}`), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}

	f, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Legacy == nil {
		t.Fatalf("expected legacy save")
	}

	now := time.UnixMilli(10_000_000)
	grace := time.Hour
	save := Migrate(f, now, grace)
	if got := save.Wars["A"]; len(got) != 1 || got[0] != "B" {
		t.Fatalf("migrated wars: got %v", got)
	}
	want := now.Add(-grace).UnixMilli()
	if got := save.Starts["A:B"]; got != want {
		t.Fatalf("backdated start: got %d want %d", got, want)
	}
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	f, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("read missing: %v", err)
	}
	if f.V1 == nil || len(f.V1.Wars) != 0 {
		t.Fatalf("expected empty versioned save, got %+v", f)
	}
}

func TestReadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shinobi_wars.json")
	if err := os.WriteFile(path, []byte(`{"wars": [not json`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected corrupt-file error")
	}
}

func TestWriteIsAtomicOverExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shinobi_wars.json")
	if err := Write(path, SaveV1{Version: Version, Wars: map[string][]string{"a": {"b"}}, Starts: map[string]int64{"a:b": 1}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := Write(path, SaveV1{Version: Version, Wars: map[string][]string{}, Starts: map[string]int64{}}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	f, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(f.V1.Wars) != 0 {
		t.Fatalf("expected second write to win, got %v", f.V1.Wars)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}
