package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testMapping(name, ip string) HostMapping {
	return HostMapping{
		InstanceName: name,
		Zone:         "us-east1-b",
		Project:      "nebula-prod",
		ExternalIP:   ip,
		KeyPath:      "/keys/" + name + "_key",
		User:         "nebula",
		LastUpdated:  time.Now().UTC(),
	}
}

func TestStore_PutGet(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "mappings.json"))

	if err := store.Put(testMapping("worker-1", "34.1.2.3")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	m, ok := store.Get("worker-1")
	if !ok {
		t.Fatal("mapping not found after Put")
	}
	if m.ExternalIP != "34.1.2.3" {
		t.Errorf("expected IP 34.1.2.3, got %s", m.ExternalIP)
	}

	if _, ok := store.Get("worker-2"); ok {
		t.Error("unexpected mapping for worker-2")
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "mappings.json"))

	store.Put(testMapping("worker-1", "1.1.1.1"))
	store.Put(testMapping("worker-1", "2.2.2.2"))

	m, _ := store.Get("worker-1")
	if m.ExternalIP != "2.2.2.2" {
		t.Errorf("expected last write to win, got %s", m.ExternalIP)
	}
	if len(store.All()) != 1 {
		t.Errorf("expected one mapping, got %d", len(store.All()))
	}
}

func TestStore_AllSorted(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "mappings.json"))

	store.Put(testMapping("worker-2", "2.2.2.2"))
	store.Put(testMapping("alpha", "3.3.3.3"))
	store.Put(testMapping("worker-1", "1.1.1.1"))

	all := store.All()
	want := []string{"alpha", "worker-1", "worker-2"}
	if len(all) != len(want) {
		t.Fatalf("expected %d mappings, got %d", len(want), len(all))
	}
	for i, name := range want {
		if all[i].InstanceName != name {
			t.Errorf("all[%d]: expected %s, got %s", i, name, all[i].InstanceName)
		}
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")

	store := NewStore(path)
	if err := store.Put(testMapping("worker-1", "34.1.2.3")); err != nil {
		t.Fatal(err)
	}

	reopened := NewStore(path)
	m, ok := reopened.Get("worker-1")
	if !ok {
		t.Fatal("mapping lost across reopen")
	}
	if m.KeyPath != "/keys/worker-1_key" {
		t.Errorf("expected key path round trip, got %s", m.KeyPath)
	}
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path)
	if len(store.All()) != 0 {
		t.Errorf("corrupt store should start empty, got %d mappings", len(store.All()))
	}

	// The store must still be writable afterwards.
	if err := store.Put(testMapping("worker-1", "1.1.1.1")); err != nil {
		t.Fatalf("Put after corrupt load failed: %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	store := NewStore(path)

	store.Put(testMapping("worker-1", "1.1.1.1"))
	if err := store.Delete("worker-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Get("worker-1"); ok {
		t.Error("mapping still present after Delete")
	}

	// Deleting a missing name is a no-op.
	if err := store.Delete("worker-1"); err != nil {
		t.Errorf("second Delete should be nil, got %v", err)
	}

	reopened := NewStore(path)
	if _, ok := reopened.Get("worker-1"); ok {
		t.Error("delete not persisted")
	}
}

func TestStore_PersistFailureRollsBack(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not constrain root")
	}

	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "mappings.json"))
	if err := store.Put(testMapping("worker-1", "1.1.1.1")); err != nil {
		t.Fatal(err)
	}

	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0755)

	if err := store.Put(testMapping("worker-1", "2.2.2.2")); err == nil {
		t.Fatal("expected persist failure in read-only directory")
	}
	m, ok := store.Get("worker-1")
	if !ok || m.ExternalIP != "1.1.1.1" {
		t.Errorf("failed Put must restore the previous record, got %+v", m)
	}

	if err := store.Put(testMapping("worker-2", "3.3.3.3")); err == nil {
		t.Fatal("expected persist failure in read-only directory")
	}
	if _, ok := store.Get("worker-2"); ok {
		t.Error("failed Put of a new record must not leave it in memory")
	}

	if err := store.Delete("worker-1"); err == nil {
		t.Fatal("expected persist failure in read-only directory")
	}
	if _, ok := store.Get("worker-1"); !ok {
		t.Error("failed Delete must restore the record")
	}
}

func TestStore_FileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	store := NewStore(path)
	store.Put(testMapping("worker-1", "1.1.1.1"))

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}
}
