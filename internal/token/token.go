// Package token issues the guest access tokens that let a buyer view one
// order without an account.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// ByteLength is the amount of entropy in a token: 256 bits.
	ByteLength = 32
	// EncodedLength is the length of the unpadded base64url form.
	EncodedLength = 43
)

var encoding = base64.RawURLEncoding.Strict()

// Generator produces guest access tokens.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// Generate returns a fresh URL-safe token.
func (g *Generator) Generate() (string, error) {
	b := make([]byte, ByteLength)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return encoding.EncodeToString(b), nil
}

// Valid reports whether s has the shape of a token Generate could return.
// It says nothing about whether any order carries it.
func Valid(s string) bool {
	if len(s) != EncodedLength {
		return false
	}
	b, err := encoding.DecodeString(s)
	return err == nil && len(b) == ByteLength
}
