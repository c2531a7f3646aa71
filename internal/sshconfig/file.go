package sshconfig

import (
	"io/fs"
	"log"
	"os"

	"github.com/nebula-tools/nebulactl/internal/atomicfile"
)

// defaultMode keeps the config out of other users' reach; it names private
// key paths.
const defaultMode fs.FileMode = 0600

// LoadFile reads the config file. A missing file is an empty config, and an
// unreadable one degrades to empty as well: the file is re-derivable and a
// read failure must not block reconciliation.
func LoadFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("sshconfig: reading %s: %v (treating as empty)", path, err)
		}
		return ""
	}
	return string(data)
}

// SaveFile writes the config atomically, preserving the mode of an existing
// file and creating new files as 0600.
func SaveFile(path, content string) error {
	mode := defaultMode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return atomicfile.WriteFile(path, []byte(content), mode)
}
