package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickFirstNonEmpty(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected string
	}{
		{name: "first non-empty value", values: []string{"first", "second"}, expected: "first"},
		{name: "empty first value", values: []string{"", "second"}, expected: "second"},
		{name: "all empty values", values: []string{"", ""}, expected: ""},
		{name: "no values", values: []string{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PickFirstNonEmpty(tt.values...))
		})
	}
}

func TestFileDigestMatchesDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.zip")
	data := []byte("agent bundle")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	digest, size, err := FileDigest(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, Digest(data), digest)

	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir))
	assert.True(t, IsDirectory(dir))

	_, _, err = FileDigest(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.5 KiB", HumanBytes(1536))
	assert.Equal(t, "250.0 MiB", HumanBytes(250<<20))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, int32(10), ToInt32NonNegative(10))
	assert.Equal(t, int32(0), ToInt32NonNegative(-4))
}
