package sniff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detector(t *testing.T) *Detector {
	t.Helper()
	d, err := Default(nil)
	require.NoError(t, err)
	return d
}

func TestDetectSignatures(t *testing.T) {
	d := detector(t)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "png"},
		{"gif89a", []byte("GIF89a\x01\x00\x01\x00"), "gif89a"},
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3"), "pdf"},
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00, 0x00}, "gzip"},
		{"sqlite", []byte("SQLite format 3\x00\x10\x00"), "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := d.Detect(tt.data)
			assert.Equal(t, tt.want, m.Name)
			assert.Equal(t, SourceSignature, m.Source)
		})
	}
}

func TestDetectPrefersLongestMatch(t *testing.T) {
	d, err := New([]Signature{
		{Name: "short", MIME: "application/x-short", Pattern: "AA BB"},
		{Name: "long", MIME: "application/x-long", Pattern: "AA BB CC DD"},
		{Name: "other", MIME: "application/x-other", Pattern: "01"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "long", d.Detect([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee}).Name)
	assert.Equal(t, "short", d.Detect([]byte{0xaa, 0xbb, 0xcc, 0x00}).Name)
}

func TestDetectShorterSignatureOfNestedPair(t *testing.T) {
	d, err := New([]Signature{
		{Name: "custom", MIME: "application/x-custom", Pattern: "AB CD"},
		{Name: "custom-v1", MIME: "application/x-custom-v1", Pattern: "AB CD 01"},
	}, nil)
	require.NoError(t, err)

	m := d.Detect([]byte{0xab, 0xcd, 0x02, 0x00})
	assert.Equal(t, "custom", m.Name)
	assert.Equal(t, SourceSignature, m.Source)

	assert.Equal(t, "custom-v1", d.Detect([]byte{0xab, 0xcd, 0x01, 0x00}).Name)
}

func TestDetectRIFFContainer(t *testing.T) {
	d := detector(t)

	webp := append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), make([]byte, 32)...)
	assert.Equal(t, "image/webp", d.Detect(webp).MIME)
}

func TestDetectFallsBackToMimetype(t *testing.T) {
	d := detector(t)

	m := d.Detect([]byte(`{"hello": "world"}`))
	assert.Equal(t, SourceMimetype, m.Source)
	assert.Equal(t, "application/json", m.MIME)

	txt := d.Detect([]byte("just some plain words, nothing else to see here"))
	assert.Equal(t, "text/plain", txt.MIME)
	assert.NotEmpty(t, txt.Charset)
}

func TestLookup(t *testing.T) {
	d := detector(t)

	sig, ok, err := d.Lookup("89 50 4E 47 0D 0A 1A 0A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "png", sig.Name)

	_, ok, err = d.Lookup("89 50 4E 47")
	require.NoError(t, err)
	assert.False(t, ok, "lookup is exact, not prefix")

	_, _, err = d.Lookup("zz")
	assert.Error(t, err)
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New([]Signature{{Name: "bad", Pattern: "GG"}}, nil)
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
signatures:
  - name: custom-yaml
    mime: application/x-custom-yaml
    pattern: "CA FE ?? 01"
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.toml"), []byte(`
[[signature]]
name = "custom-toml"
mime = "application/x-custom-toml"
pattern = "BE EF"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	sigs, err := LoadFiles(filepath.Join(dir, "**", "*.{yaml,toml}"))
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	d, err := WithFiles(filepath.Join(dir, "**", "*.{yaml,toml}"), nil)
	require.NoError(t, err)
	assert.Equal(t, "custom-yaml", d.Detect([]byte{0xca, 0xfe, 0x77, 0x01}).Name)
	assert.Equal(t, "custom-toml", d.Detect([]byte{0xbe, 0xef, 0x00}).Name)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("signatures: ["), FormatYAML)
	assert.Error(t, err)

	_, err = Parse([]byte("x"), "ini")
	assert.Error(t, err)
}
