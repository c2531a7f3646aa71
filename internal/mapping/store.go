// Package mapping persists the instance-to-host records that tie cloud
// instances to their SSH config blocks. The store is a derived cache of the
// cloud provider's state: a missing or corrupt file loads as empty instead
// of failing, and every write is an atomic whole-file replace.
package mapping

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nebula-tools/nebulactl/internal/atomicfile"
)

// HostMapping is one managed instance record. InstanceName is the unique
// key and doubles as the SSH host alias.
type HostMapping struct {
	InstanceName string    `json:"instanceName"`
	Zone         string    `json:"zone"`
	Project      string    `json:"project"`
	ExternalIP   string    `json:"externalIP"`
	KeyPath      string    `json:"keyPath"`
	User         string    `json:"user"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

type Store struct {
	mu       sync.RWMutex
	mappings map[string]HostMapping
	path     string
}

// NewStore opens the store at path. Load failures are logged and degrade to
// an empty store; the cloud provider remains the source of truth.
func NewStore(path string) *Store {
	s := &Store{
		mappings: make(map[string]HostMapping),
		path:     path,
	}
	s.load()
	return s
}

func (s *Store) Get(instanceName string) (HostMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[instanceName]
	return m, ok
}

// Put stores the mapping (last write wins per instance name) and persists.
// A persist failure leaves the on-disk file in its previous state.
func (s *Store) Put(m HostMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.mappings[m.InstanceName]
	s.mappings[m.InstanceName] = m
	if err := s.persist(); err != nil {
		if existed {
			s.mappings[m.InstanceName] = prev
		} else {
			delete(s.mappings, m.InstanceName)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(instanceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.mappings[instanceName]
	if !existed {
		return nil
	}
	delete(s.mappings, instanceName)
	if err := s.persist(); err != nil {
		s.mappings[instanceName] = prev
		return err
	}
	return nil
}

// All returns every mapping sorted by instance name.
func (s *Store) All() []HostMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]HostMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceName < result[j].InstanceName
	})
	return result
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("mapping: reading %s: %v (starting empty)", s.path, err)
		}
		return
	}

	var mappings map[string]HostMapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		log.Printf("mapping: %s is corrupt: %v (starting empty)", s.path, err)
		return
	}
	s.mappings = mappings
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.mappings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mappings: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("persisting mappings: %w", err)
	}
	return nil
}
