package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestRoundTripAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	if err := store.SaveChecked(map[string]bool{"3.2": true}); err != nil {
		t.Fatalf("SaveChecked() error = %v", err)
	}
	if err := store.SaveComments(map[string]string{"1.1": "revisar ICP"}); err != nil {
		t.Fatalf("SaveComments() error = %v", err)
	}

	reloaded := NewFileStore(dir)
	if !reloaded.LoadChecked()["3.2"] {
		t.Error("expected checked entry after reload")
	}
	if got := reloaded.LoadComments()["1.1"]; got != "revisar ICP" {
		t.Errorf("expected comment after reload, got %q", got)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp")); len(leftovers) != 0 {
		t.Errorf("temp files should not remain after atomic write: %v", leftovers)
	}
}

func TestMissingFilesYieldEmptyMaps(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	if got := store.LoadChecked(); got == nil || len(got) != 0 {
		t.Errorf("expected empty checked map, got %v", got)
	}
	if got := store.LoadComments(); got == nil || len(got) != 0 {
		t.Errorf("expected empty comments map, got %v", got)
	}
}

func TestMalformedFilesYieldEmptyMaps(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, checkedFile), []byte(`{"3.2": tru`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, commentsFile), []byte(`["not","a","map"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(dir)
	if got := store.LoadChecked(); len(got) != 0 {
		t.Errorf("expected empty checked map, got %v", got)
	}
	if got := store.LoadComments(); len(got) != 0 {
		t.Errorf("expected empty comments map, got %v", got)
	}
}

func TestNullFileYieldsEmptyMap(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, checkedFile), []byte(`null`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := NewFileStore(dir).LoadChecked(); got == nil {
		t.Error("expected non-nil map for null payload")
	}
}

func TestEmptyDirIsNoop(t *testing.T) {
	store := NewFileStore("")
	if err := store.SaveChecked(map[string]bool{"1": true}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.LoadChecked()) != 0 {
		t.Error("expected empty map")
	}
}

func TestConcurrentSavesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.SaveChecked(map[string]bool{fmt.Sprintf("n%d", i): true})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("SaveChecked() error = %v", err)
		}
	}
	if got := store.LoadChecked(); len(got) != 1 {
		t.Errorf("expected one complete write to win, got %v", got)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp")); len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
