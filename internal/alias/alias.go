// Package alias reads the known-thermostats file and expands labels into
// thermostat addresses.
//
// The file lists one thermostat per line: its MAC address followed by any
// free-form alias text. Everything after '#' is a comment.
//
//	00:1A:22:0A:0B:0C  kitchen ground floor
//	00:1A:22:0A:0B:0D  office   # by the window
//
// Lines whose address does not carry the Eqiva vendor prefix are ignored.
package alias

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// FileName is the alias file name in the user's home directory.
const FileName = ".known_eqivas"

var (
	linePattern = regexp.MustCompile(`^([0-9A-Fa-f:-]+)\s+(.*)$`)
	macPattern  = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)
)

// Entry is one line of the alias file.
type Entry struct {
	Address string `json:"address"`
	Alias   string `json:"alias"`
}

// File holds the parsed aliases. The zero value is an empty file.
type File struct {
	entries []Entry
}

// DefaultPath returns ~/.known_eqivas.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("alias: locating home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// Load reads the alias file at path. A missing file yields an empty File.
func Load(path string) (*File, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("alias: opening %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads alias lines from r.
func Parse(r io.Reader) (*File, error) {
	file := &File{}
	seen := make(map[string]int)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)

		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		addr := eqiva.NormalizeAddress(m[1])
		if !eqiva.IsEqivaAddress(addr) {
			continue
		}
		entry := Entry{Address: addr, Alias: strings.TrimSpace(m[2])}

		// A repeated address keeps its last alias.
		if i, ok := seen[addr]; ok {
			file.entries[i] = entry
			continue
		}
		seen[addr] = len(file.entries)
		file.entries = append(file.entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("alias: reading: %w", err)
	}
	return file, nil
}

// Entries returns every alias in file order.
func (f *File) Entries() []Entry {
	if f == nil {
		return nil
	}
	return append([]Entry(nil), f.entries...)
}

// Lookup expands one label.
//
// Parameters:
//   - label: A MAC address or an alias fragment
//
// Returns:
//   - []string: The address itself for a MAC, otherwise every address whose
//     alias contains label (case-insensitive), sorted
//   - bool: false when nothing matched, or the MAC lacks the vendor prefix
func (f *File) Lookup(label string) ([]string, bool) {
	norm := eqiva.NormalizeAddress(label)
	if macPattern.MatchString(norm) {
		if !eqiva.IsEqivaAddress(norm) {
			return nil, false
		}
		return []string{norm}, true
	}

	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" || f == nil {
		return nil, false
	}
	var out []string
	for _, e := range f.entries {
		if strings.Contains(strings.ToLower(e.Alias), needle) {
			out = append(out, e.Address)
		}
	}
	sort.Strings(out)
	return out, len(out) > 0
}

// Resolve expands every token and removes duplicates. Tokens that match no
// alias are kept unchanged so the scanner can still match advertised names.
func (f *File) Resolve(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, tok := range tokens {
		if addrs, ok := f.Lookup(tok); ok {
			for _, a := range addrs {
				add(a)
			}
			continue
		}
		add(tok)
	}
	return out
}

// AliasOf returns the alias text for address, or "".
func (f *File) AliasOf(address string) string {
	if f == nil {
		return ""
	}
	addr := eqiva.NormalizeAddress(address)
	for _, e := range f.entries {
		if e.Address == addr {
			return e.Alias
		}
	}
	return ""
}

// Addresses returns every known address. It lets the alias file feed the
// status poller.
func (f *File) Addresses() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Address
	}
	return out
}

// String renders the file as "address<TAB>alias" lines.
func (f *File) String() string {
	var b strings.Builder
	for i, e := range f.Entries() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Address)
		b.WriteByte('\t')
		b.WriteString(e.Alias)
	}
	return b.String()
}
