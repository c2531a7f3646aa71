package syncer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nebula-tools/nebulactl/internal/mapping"
)

func setupSyncer(t *testing.T) (*Syncer, *mapping.Store, string) {
	t.Helper()
	dir := t.TempDir()
	sshPath := filepath.Join(dir, "ssh_config")
	store := mapping.NewStore(filepath.Join(dir, "mappings.json"))
	return New(store, sshPath, "/keys", "nebula"), store, sshPath
}

func readConfig(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading ssh config: %v", err)
	}
	return string(data)
}

func TestSync_CreatesEntry(t *testing.T) {
	sy, store, sshPath := setupSyncer(t)

	outcome, err := sy.Sync(Request{InstanceName: "worker-1", Zone: "us-east1-b", Project: "p", ObservedIP: "34.1.2.3"})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("expected %s, got %s", OutcomeCreated, outcome)
	}

	content := readConfig(t, sshPath)
	if !strings.Contains(content, "# nebulactl: worker-1\n") {
		t.Errorf("marker missing from config:\n%s", content)
	}
	if !strings.Contains(content, "  HostName 34.1.2.3\n") {
		t.Errorf("HostName missing from config:\n%s", content)
	}

	m, ok := store.Get("worker-1")
	if !ok {
		t.Fatal("mapping not stored")
	}
	if m.KeyPath != filepath.Join("/keys", "worker-1_key") {
		t.Errorf("expected derived key path, got %s", m.KeyPath)
	}
	if m.User != "nebula" {
		t.Errorf("expected default user, got %s", m.User)
	}
	if m.Zone != "us-east1-b" || m.Project != "p" {
		t.Errorf("location context not stored: %+v", m)
	}
}

func TestSync_RepeatIsByteIdentical(t *testing.T) {
	sy, _, sshPath := setupSyncer(t)
	req := Request{InstanceName: "worker-1", ObservedIP: "34.1.2.3"}

	if _, err := sy.Sync(req); err != nil {
		t.Fatal(err)
	}
	first := readConfig(t, sshPath)

	outcome, err := sy.Sync(req)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeUpdatedNoChange {
		t.Errorf("expected %s, got %s", OutcomeUpdatedNoChange, outcome)
	}
	if second := readConfig(t, sshPath); second != first {
		t.Errorf("repeat sync changed the config:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestSync_IPChange(t *testing.T) {
	sy, store, sshPath := setupSyncer(t)

	sy.Sync(Request{InstanceName: "worker-1", ObservedIP: "34.1.2.3"})
	outcome, err := sy.Sync(Request{InstanceName: "worker-1", ObservedIP: "35.4.5.6"})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeUpdatedIPChanged {
		t.Errorf("expected %s, got %s", OutcomeUpdatedIPChanged, outcome)
	}

	content := readConfig(t, sshPath)
	if strings.Contains(content, "34.1.2.3") {
		t.Errorf("stale IP still in config:\n%s", content)
	}
	if !strings.Contains(content, "  HostName 35.4.5.6\n") {
		t.Errorf("new IP missing from config:\n%s", content)
	}

	m, _ := store.Get("worker-1")
	if m.ExternalIP != "35.4.5.6" {
		t.Errorf("store not updated, got %s", m.ExternalIP)
	}
}

func TestSync_NoAddressLeavesEverythingIntact(t *testing.T) {
	sy, store, sshPath := setupSyncer(t)

	sy.Sync(Request{InstanceName: "worker-1", ObservedIP: "34.1.2.3"})
	before := readConfig(t, sshPath)
	prevMapping, _ := store.Get("worker-1")

	outcome, err := sy.Sync(Request{InstanceName: "worker-1", ObservedIP: ""})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if outcome != OutcomeNoAddress {
		t.Errorf("expected %s, got %s", OutcomeNoAddress, outcome)
	}

	if after := readConfig(t, sshPath); after != before {
		t.Errorf("no-address sync must not touch the config:\nbefore:\n%s\nafter:\n%s", before, after)
	}
	m, ok := store.Get("worker-1")
	if !ok {
		t.Fatal("mapping dropped on no-address sync")
	}
	if m != prevMapping {
		t.Errorf("mapping changed on no-address sync:\nbefore: %+v\nafter: %+v", prevMapping, m)
	}
}

func TestSync_EmptyNameFails(t *testing.T) {
	sy, _, _ := setupSyncer(t)

	if _, err := sy.Sync(Request{ObservedIP: "1.2.3.4"}); err == nil {
		t.Error("expected error for empty instance name")
	}
}

func TestSync_PreservesForeignBlocks(t *testing.T) {
	sy, _, sshPath := setupSyncer(t)

	foreign := "Host bastion\n  HostName 10.0.0.1\n  User admin\n"
	if err := os.WriteFile(sshPath, []byte(foreign), 0600); err != nil {
		t.Fatal(err)
	}

	sy.Sync(Request{InstanceName: "worker-2", ObservedIP: "2.2.2.2"})
	sy.Sync(Request{InstanceName: "worker-1", ObservedIP: "34.1.2.3"})
	sy.Sync(Request{InstanceName: "worker-1", ObservedIP: "34.9.9.9"})

	content := readConfig(t, sshPath)
	if !strings.Contains(content, foreign) {
		t.Errorf("hand-written block not preserved byte for byte:\n%s", content)
	}
	if !strings.Contains(content, "# nebulactl: worker-2\nHost worker-2\n  HostName 2.2.2.2\n") {
		t.Errorf("worker-2 block disturbed by worker-1 syncs:\n%s", content)
	}
}

func TestSync_Overrides(t *testing.T) {
	sy, store, _ := setupSyncer(t)

	sy.Sync(Request{
		InstanceName: "worker-1",
		ObservedIP:   "34.1.2.3",
		KeyPath:      "/custom/key",
		User:         "deploy",
	})

	m, _ := store.Get("worker-1")
	if m.KeyPath != "/custom/key" {
		t.Errorf("key path override ignored, got %s", m.KeyPath)
	}
	if m.User != "deploy" {
		t.Errorf("user override ignored, got %s", m.User)
	}

	// A later sync without overrides keeps the earlier choices.
	sy.Sync(Request{InstanceName: "worker-1", ObservedIP: "35.0.0.1"})
	m, _ = store.Get("worker-1")
	if m.KeyPath != "/custom/key" || m.User != "deploy" {
		t.Errorf("overrides not carried forward: %+v", m)
	}
}

func TestDefaultKeyPath(t *testing.T) {
	got := DefaultKeyPath("/home/u/.ssh", "worker-1")
	want := filepath.Join("/home/u/.ssh", "worker-1_key")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
