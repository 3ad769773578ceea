package services

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGeneratorAlphabetAndLength(t *testing.T) {
	g := NewKeyGenerator(0)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		k, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, k, DefaultKeyLength)
		for _, r := range k {
			require.True(t, strings.ContainsRune(KeyAlphabet, r))
		}
		seen[k] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestKeyGeneratorRoughlyUniform(t *testing.T) {
	g := NewKeyGenerator(64)
	counts := make(map[rune]int)
	const rounds = 1000
	for i := 0; i < rounds; i++ {
		k, err := g.Generate()
		require.NoError(t, err)
		for _, r := range k {
			counts[r]++
		}
	}
	expected := float64(rounds*64) / float64(len(KeyAlphabet))
	assert.Len(t, counts, len(KeyAlphabet))
	for r, n := range counts {
		assert.InDelta(t, expected, float64(n), expected*0.15, "symbol %q", r)
	}
}

func TestKeyGeneratorDiscardsBiasedBytes(t *testing.T) {
	// 252..255 are above the largest multiple of 36 and must be skipped.
	g := &KeyGenerator{Length: 3, Rand: bytes.NewReader([]byte{255, 252, 0, 1, 35, 7})}
	k, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "AB9", k)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestKeyGeneratorReadError(t *testing.T) {
	g := &KeyGenerator{Length: 4, Rand: failingReader{}}
	_, err := g.Generate()
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("device-123")
	assert.Len(t, fp, FingerprintLength)
	assert.Equal(t, fp, Fingerprint("device-123"))
	assert.NotEqual(t, fp, Fingerprint("device-124"))
	// sha256("abc") starts with ba7816bf8f01cfea.
	assert.Equal(t, "ba7816bf8f01cfea", Fingerprint("abc"))
}

func TestSettingsStoreClampsInitial(t *testing.T) {
	s := NewSettingsStore(Settings{MaxKeysPerHWID: -4})
	assert.Equal(t, 1, s.Get().MaxKeysPerHWID)
}

func TestGeoIPResolverMissingDatabase(t *testing.T) {
	_, err := NewGeoIPResolver(filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)
}
