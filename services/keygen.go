package services

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	KeyAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultKeyLength = 16
)

// KeyGenerator draws keys uniformly from KeyAlphabet.
type KeyGenerator struct {
	Length int
	Rand   io.Reader
}

func NewKeyGenerator(length int) *KeyGenerator {
	if length <= 0 {
		length = DefaultKeyLength
	}
	return &KeyGenerator{Length: length, Rand: rand.Reader}
}

// Generate returns a new random key. Bytes at or above the largest multiple
// of the alphabet size are discarded so every symbol is equally likely.
func (g *KeyGenerator) Generate() (string, error) {
	const n = len(KeyAlphabet)
	const limit = 256 - 256%n

	out := make([]byte, 0, g.Length)
	buf := make([]byte, g.Length)
	for len(out) < g.Length {
		if _, err := io.ReadFull(g.Rand, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, KeyAlphabet[int(b)%n])
			if len(out) == g.Length {
				break
			}
		}
	}
	return string(out), nil
}
