// Package sshconfig edits the SSH client config file without disturbing
// entries it does not own. Blocks written by nebulactl are introduced by a
// marker comment naming the alias; everything else in the file is foreign
// and is preserved byte for byte.
package sshconfig

import (
	"fmt"
	"strings"
)

const markerPrefix = "# nebulactl: "

// HostEntry is one managed host block.
type HostEntry struct {
	Alias        string
	HostName     string
	User         string
	IdentityFile string
}

// render produces the canonical block text. The field set and order are
// fixed so repeated renders of the same entry are byte-identical.
func (e HostEntry) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", markerPrefix, e.Alias)
	fmt.Fprintf(&b, "Host %s\n", e.Alias)
	fmt.Fprintf(&b, "  HostName %s\n", e.HostName)
	fmt.Fprintf(&b, "  User %s\n", e.User)
	fmt.Fprintf(&b, "  IdentityFile %s\n", e.IdentityFile)
	b.WriteString("  IdentitiesOnly yes\n")
	b.WriteString("  StrictHostKeyChecking accept-new\n")
	return b.String()
}

// UpsertHost returns the config text with the entry's block replaced in
// place, or appended at the end if no block owned by this alias exists.
// Matching is on the full marker line, never on substrings, so worker-1
// cannot collide with worker-10.
func UpsertHost(content string, entry HostEntry) string {
	lines := splitLines(content)
	marker := markerPrefix + entry.Alias

	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == marker {
			start = i
			break
		}
	}

	if start < 0 {
		return appendBlock(content, entry)
	}

	end := blockEnd(lines, start)

	var b strings.Builder
	for _, line := range lines[:start] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(entry.render())
	for _, line := range lines[end:] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	out := b.String()
	// A file that did not end in a newline keeps that shape, unless the
	// rewritten block itself is now the last thing in the file.
	if !strings.HasSuffix(content, "\n") && end < len(lines) {
		out = strings.TrimSuffix(out, "\n")
	}
	return out
}

// blockEnd finds the first line after the marker that starts a different
// block: another marker line or a Host declaration that is not ours. Blank
// lines between our block and the next boundary are foreign separators, not
// part of the block.
func blockEnd(lines []string, start int) int {
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, markerPrefix) {
			end = i
			break
		}
		// The Host line immediately following our marker belongs to us.
		if i == start+1 {
			continue
		}
		if isHostLine(line) {
			end = i
			break
		}
	}
	for end > start+1 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return end
}

func appendBlock(content string, entry HostEntry) string {
	if content == "" {
		return entry.render()
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if !strings.HasSuffix(content, "\n\n") {
		content += "\n"
	}
	return content + entry.render()
}

// ManagedAliases returns the aliases of all blocks owned by nebulactl, in
// file order.
func ManagedAliases(content string) []string {
	var aliases []string
	for _, line := range splitLines(content) {
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasPrefix(trimmed, markerPrefix) {
			aliases = append(aliases, strings.TrimPrefix(trimmed, markerPrefix))
		}
	}
	return aliases
}

// Aliases returns every Host alias declared in the file, managed or not,
// excluding wildcard patterns.
func Aliases(content string) []string {
	var aliases []string
	for _, line := range splitLines(content) {
		if !isHostLine(line) {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line))
		for _, f := range fields[1:] {
			if strings.ContainsAny(f, "*?") {
				continue
			}
			aliases = append(aliases, f)
		}
	}
	return aliases
}

// UnmanagedDuplicates returns managed aliases that also appear in a Host
// declaration outside their marker-owned block. Such blocks predate
// nebulactl and are deliberately left alone; callers should flag them to
// the operator.
func UnmanagedDuplicates(content string) []string {
	managed := make(map[string]bool)
	for _, a := range ManagedAliases(content) {
		managed[a] = true
	}
	if len(managed) == 0 {
		return nil
	}

	lines := splitLines(content)
	owned := make(map[int]bool)
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if !strings.HasPrefix(trimmed, markerPrefix) {
			continue
		}
		for j := i; j < blockEnd(lines, i); j++ {
			owned[j] = true
		}
	}

	seen := make(map[string]bool)
	var dupes []string
	for i, line := range lines {
		if owned[i] || !isHostLine(line) {
			continue
		}
		for _, f := range strings.Fields(strings.TrimSpace(line))[1:] {
			if managed[f] && !seen[f] {
				seen[f] = true
				dupes = append(dupes, f)
			}
		}
	}
	return dupes
}

func isHostLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 5 {
		return false
	}
	return strings.EqualFold(trimmed[:5], "host ")
}

// splitLines splits without producing a trailing empty element for a
// trailing newline, so join(lines, "\n")+"\n" round-trips typical files.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}
