package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agencyos/internal/localstore"
	"agencyos/internal/passcode"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestHashCommand(t *testing.T) {
	out, _, err := execute(t, "hash", "secret1")
	if err != nil {
		t.Fatalf("hash error = %v", err)
	}
	if strings.TrimSpace(out) != passcode.Hash("secret1") {
		t.Errorf("unexpected digest %q", out)
	}

	out, _, err = execute(t, "hash", "secret1", "--label", "Sócio D")
	if err != nil {
		t.Fatalf("hash error = %v", err)
	}
	entries, err := passcode.ParseEntries(strings.TrimSpace(out))
	if err != nil || len(entries) != 1 || entries[0].Label != "Sócio D" {
		t.Errorf("output should be a valid passcode entry, got %q (%v)", out, err)
	}
}

func TestHashCommandRequiresCode(t *testing.T) {
	if _, _, err := execute(t, "hash"); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestExportOutlineToStdout(t *testing.T) {
	out, _, err := execute(t, "export", "--data-dir", t.TempDir(), "--format", "txt", "-o", "-")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if !strings.HasPrefix(out, "- Direção Estratégica") {
		t.Errorf("unexpected outline %q", out[:40])
	}
}

func TestExportProgressFromDataDir(t *testing.T) {
	dataDir := t.TempDir()
	store := localstore.NewFileStore(dataDir)
	if err := store.SaveChecked(map[string]bool{"5.1": true}); err != nil {
		t.Fatalf("SaveChecked() error = %v", err)
	}

	outDir := t.TempDir()
	_, stderr, err := execute(t, "export", "--data-dir", dataDir, "-o", outDir)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if !strings.Contains(stderr, "agencyos-progresso.json") {
		t.Errorf("expected a summary line, got %q", stderr)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "agencyos-progresso.json"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var decoded struct {
		CheckedMap map[string]bool `json:"checkedMap"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if !decoded.CheckedMap["5.1"] {
		t.Errorf("export should carry local progress, got %s", data)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	if _, _, err := execute(t, "export", "--data-dir", t.TempDir(), "--format", "odt", "-o", "-"); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}
