package store

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLoadJSON_Missing(t *testing.T) {
	var r record
	found, err := LoadJSON(filepath.Join(t.TempDir(), "nope.json"), &r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for a missing file")
	}
}

func TestSaveJSON_CreatesDirAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := SaveJSON(path, record{Name: "a", Count: 3}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}

	var r record
	found, err := LoadJSON(path, &r)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if r.Name != "a" || r.Count != 3 {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestLoadJSON_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var r record
	found, err := LoadJSON(path, &r)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !found {
		t.Error("a corrupt file still exists")
	}
}
