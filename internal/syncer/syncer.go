// Package syncer reconciles the mapping store and the SSH config file with
// an instance's freshly observed external IP.
package syncer

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/nebula-tools/nebulactl/internal/mapping"
	"github.com/nebula-tools/nebulactl/internal/sshconfig"
)

// Outcome describes what a Sync call did.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdatedIPChanged Outcome = "updated-ip-changed"
	OutcomeUpdatedNoChange  Outcome = "updated-no-change"
	// OutcomeNoAddress means the instance has no external IP; nothing was
	// written so the previous host block keeps working once the address
	// comes back.
	OutcomeNoAddress Outcome = "no-address"
)

// Request carries the observed state for one instance. ObservedIP empty
// means the instance currently has no external address.
type Request struct {
	InstanceName string
	Zone         string
	Project      string
	ObservedIP   string
	// KeyPath overrides the derived default key path when set.
	KeyPath string
	// User overrides the configured default login when set.
	User string
}

type Syncer struct {
	store       *mapping.Store
	sshPath     string
	keyDir      string
	defaultUser string
}

func New(store *mapping.Store, sshPath, keyDir, defaultUser string) *Syncer {
	return &Syncer{
		store:       store,
		sshPath:     sshPath,
		keyDir:      keyDir,
		defaultUser: defaultUser,
	}
}

// DefaultKeyPath derives the private key location from the instance name.
func DefaultKeyPath(keyDir, instanceName string) string {
	return filepath.Join(keyDir, instanceName+"_key")
}

// Sync writes the desired mapping to the store and upserts the matching
// host block in the SSH config. Both land or neither does: a failed config
// write rolls the store back to its previous record. Calling Sync twice
// with identical inputs leaves the config file byte-identical; only the
// store's LastUpdated moves.
func (s *Syncer) Sync(req Request) (Outcome, error) {
	if req.InstanceName == "" {
		return "", fmt.Errorf("instance name is required")
	}

	prev, existed := s.store.Get(req.InstanceName)

	if req.ObservedIP == "" {
		log.Printf("syncer: %s has no external address, leaving config untouched", req.InstanceName)
		return OutcomeNoAddress, nil
	}

	desired := mapping.HostMapping{
		InstanceName: req.InstanceName,
		Zone:         req.Zone,
		Project:      req.Project,
		ExternalIP:   req.ObservedIP,
		KeyPath:      s.keyPath(req, prev, existed),
		User:         s.user(req, prev, existed),
		LastUpdated:  time.Now().UTC(),
	}

	if err := s.store.Put(desired); err != nil {
		return "", fmt.Errorf("updating mapping store: %w", err)
	}

	content := sshconfig.LoadFile(s.sshPath)
	updated := sshconfig.UpsertHost(content, sshconfig.HostEntry{
		Alias:        desired.InstanceName,
		HostName:     desired.ExternalIP,
		User:         desired.User,
		IdentityFile: desired.KeyPath,
	})

	if updated != content {
		if err := sshconfig.SaveFile(s.sshPath, updated); err != nil {
			s.rollback(prev, existed, req.InstanceName)
			return "", fmt.Errorf("writing ssh config: %w", err)
		}
	}

	switch {
	case !existed:
		return OutcomeCreated, nil
	case prev.ExternalIP != desired.ExternalIP:
		return OutcomeUpdatedIPChanged, nil
	default:
		return OutcomeUpdatedNoChange, nil
	}
}

func (s *Syncer) keyPath(req Request, prev mapping.HostMapping, existed bool) string {
	if req.KeyPath != "" {
		return req.KeyPath
	}
	if existed && prev.KeyPath != "" {
		return prev.KeyPath
	}
	return DefaultKeyPath(s.keyDir, req.InstanceName)
}

func (s *Syncer) user(req Request, prev mapping.HostMapping, existed bool) string {
	if req.User != "" {
		return req.User
	}
	if existed && prev.User != "" {
		return prev.User
	}
	return s.defaultUser
}

func (s *Syncer) rollback(prev mapping.HostMapping, existed bool, name string) {
	var err error
	if existed {
		err = s.store.Put(prev)
	} else {
		err = s.store.Delete(name)
	}
	if err != nil {
		log.Printf("syncer: rollback of %s failed: %v", name, err)
	}
}
