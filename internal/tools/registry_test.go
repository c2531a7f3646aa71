package tools

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTool(t *testing.T, root, name, entryPoint string, mode os.FileMode) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, entryPoint), []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeTool(t, root, "backup", "main.sh", 0644)
	writeTool(t, root, "deploy", "main.py", 0644)
	writeTool(t, root, "audit-report", "main", 0755)
	writeTool(t, root, ".hidden", "main.py", 0644)

	// A directory with no entry point and a stray file are both skipped.
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	descriptors, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"audit-report", "backup", "deploy"}
	if len(descriptors) != len(want) {
		t.Fatalf("expected %v, got %+v", want, descriptors)
	}
	for i, name := range want {
		if descriptors[i].Name != name {
			t.Errorf("descriptor[%d]: expected %s, got %s", i, name, descriptors[i].Name)
		}
	}
}

func TestScan_MissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for unreadable root")
	}
}

func TestScan_EntryPointPriority(t *testing.T) {
	root := t.TempDir()
	dir := writeTool(t, root, "both", "main.sh", 0644)
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print()\n"), 0644); err != nil {
		t.Fatal(err)
	}

	descriptors, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("expected one tool, got %d", len(descriptors))
	}
	if filepath.Base(descriptors[0].EntryPoint) != "main.py" {
		t.Errorf("main.py should win over main.sh, got %s", descriptors[0].EntryPoint)
	}
}

func TestScan_BareMainRequiresExecBit(t *testing.T) {
	root := t.TempDir()
	writeTool(t, root, "no-exec", "main", 0644)

	descriptors, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(descriptors) != 0 {
		t.Errorf("non-executable main should be skipped, got %+v", descriptors)
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeTool(t, root, "backup", "main.sh", 0644)

	d, err := Find(root, "backup")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if d.Name != "backup" {
		t.Errorf("expected backup, got %s", d.Name)
	}

	if _, err := Find(root, "missing"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestDescribe(t *testing.T) {
	root := t.TempDir()
	dir := writeTool(t, root, "backup", "main.sh", 0644)

	d, _ := Find(root, "backup")
	if got := d.Describe(); got != "" {
		t.Errorf("tool without README should describe as empty, got %q", got)
	}

	readme := "# Backup\n\nSnapshots the mapping store.\n"
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0644); err != nil {
		t.Fatal(err)
	}
	if got := d.Describe(); got != "Backup" {
		t.Errorf("expected first content line, got %q", got)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		entryPoint string
		want       string
	}{
		{"/tools/a/main.py", "python3"},
		{"/tools/a/main.sh", "sh"},
		{"/tools/a/main", "/tools/a/main"},
	}
	for _, tt := range tests {
		argv := command(Descriptor{Name: "a", Dir: "/tools/a", EntryPoint: tt.entryPoint})
		if argv[0] != tt.want {
			t.Errorf("command for %s: expected %s, got %s", tt.entryPoint, tt.want, argv[0])
		}
	}
}
