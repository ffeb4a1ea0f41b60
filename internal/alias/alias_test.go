package alias

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# thermostats
00:1a:22:0a:0b:0c   Kitchen ground floor
00-1A-22-0A-0B-0D	office   # by the window
11:22:33:44:55:66   speaker
not-a-line
00:1A:22:0A:0B:0E   kitchen upstairs
00:1A:22:0A:0B:0D   study
`

func mustParse(t *testing.T) *File {
	t.Helper()
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	return f
}

func TestParse(t *testing.T) {
	f := mustParse(t)

	assert.Equal(t, []Entry{
		{Address: "00:1A:22:0A:0B:0C", Alias: "Kitchen ground floor"},
		{Address: "00:1A:22:0A:0B:0D", Alias: "study"},
		{Address: "00:1A:22:0A:0B:0E", Alias: "kitchen upstairs"},
	}, f.Entries())
}

func TestLookup(t *testing.T) {
	f := mustParse(t)

	tests := []struct {
		label string
		want  []string
		ok    bool
	}{
		{"kitchen", []string{"00:1A:22:0A:0B:0C", "00:1A:22:0A:0B:0E"}, true},
		{"UPSTAIRS", []string{"00:1A:22:0A:0B:0E"}, true},
		{"00-1a-22-ff-ff-ff", []string{"00:1A:22:FF:FF:FF"}, true},
		{"11:22:33:44:55:66", nil, false},
		{"garage", nil, false},
		{"  ", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := f.Lookup(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	f := mustParse(t)

	got := f.Resolve([]string{"kitchen", "00:1A:22:0A:0B:0C", "CC-RT-BLE", "study"})
	assert.Equal(t, []string{
		"00:1A:22:0A:0B:0C",
		"00:1A:22:0A:0B:0E",
		"CC-RT-BLE",
		"00:1A:22:0A:0B:0D",
	}, got)
}

func TestAliasOfAndAddresses(t *testing.T) {
	f := mustParse(t)

	assert.Equal(t, "study", f.AliasOf("00-1a-22-0a-0b-0d"))
	assert.Empty(t, f.AliasOf("00:1A:22:00:00:00"))
	assert.Len(t, f.Addresses(), 3)
	assert.Equal(t, "00:1A:22:0A:0B:0C\tKitchen ground floor", strings.Split(f.String(), "\n")[0])
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Entries(), 3)
}

func TestLoadMissingFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, f.Entries())
	assert.Equal(t, []string{"kitchen"}, f.Resolve([]string{"kitchen"}))
}

func TestNilFile(t *testing.T) {
	var f *File
	assert.Equal(t, []string{"00:1A:22:0A:0B:0C", "kitchen"}, f.Resolve([]string{"00-1a-22-0a-0b-0c", "kitchen"}))
	assert.Nil(t, f.Entries())
	assert.Empty(t, f.String())
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("HOME", "/home/pi")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/pi/.known_eqivas", path)
}
