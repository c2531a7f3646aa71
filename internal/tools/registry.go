// Package tools discovers runnable tool directories and executes them as
// isolated child processes.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// entryPointNames are the recognized entry points, in priority order. The
// bare "main" form must carry an executable bit.
var entryPointNames = []string{"main.py", "main.sh", "main"}

// Descriptor identifies one discovered tool.
type Descriptor struct {
	Name       string `json:"name"`
	Dir        string `json:"dir"`
	EntryPoint string `json:"entryPoint"`
}

// Scan walks the root directory and returns a name-sorted catalog of tool
// directories that carry an entry point. Directories without one are
// skipped silently; only an unreadable root is an error.
func Scan(root string) ([]Descriptor, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading tools directory: %w", err)
	}

	var descriptors []Descriptor
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		entryPoint := findEntryPoint(dir)
		if entryPoint == "" {
			continue
		}
		descriptors = append(descriptors, Descriptor{
			Name:       entry.Name(),
			Dir:        dir,
			EntryPoint: entryPoint,
		})
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors, nil
}

// Find returns the descriptor for a single named tool.
func Find(root, name string) (*Descriptor, error) {
	descriptors, err := Scan(root)
	if err != nil {
		return nil, err
	}
	for _, d := range descriptors {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("tool %q not found in %s", name, root)
}

func findEntryPoint(dir string) string {
	for _, name := range entryPointNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if name == "main" && info.Mode().Perm()&0111 == 0 {
			continue
		}
		return path
	}
	return ""
}

// Describe reads the tool's description from the first content line of its
// README.md. Returns "" if the tool declares none.
func (d Descriptor) Describe() string {
	data, err := os.ReadFile(filepath.Join(d.Dir, "README.md"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return line
		}
	}
	return ""
}

// command maps an entry point to the argv that launches it. Arguments are
// appended verbatim by the runner; nothing passes through a shell.
func command(d Descriptor) []string {
	switch filepath.Base(d.EntryPoint) {
	case "main.py":
		return []string{"python3", d.EntryPoint}
	case "main.sh":
		return []string{"sh", d.EntryPoint}
	default:
		return []string{d.EntryPoint}
	}
}
