// Package codegen draws candidate short codes.
// Generators are safe for concurrent use. Uniqueness is not their concern:
// the link store's unique constraint decides whether a candidate is free.
package codegen

import (
	"crypto/rand"
	"errors"
	"strings"
)

const (
	// Alphabet is the default 62-symbol code alphabet.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultLength gives a 62^6 codespace.
	DefaultLength = 6

	// MaxLength is the longest short code the store accepts.
	MaxLength = 20
)

var (
	errLength   = errors.New("length must be positive")
	errAlphabet = errors.New("alphabet must contain between 1 and 256 distinct bytes")
)

// Generator generates candidate short codes.
type Generator interface {
	Generate(length int) (string, error)
}

type randomGenerator struct {
	alphabet string
	// bytes >= limit are rejected so every symbol is equally likely.
	limit int
}

// New returns a generator over the default alphabet.
func New() Generator {
	g, _ := NewWithAlphabet(Alphabet)
	return g
}

// NewWithAlphabet returns a generator restricted to the given symbols.
// A small alphabet shrinks the codespace, which makes collisions easy to force.
func NewWithAlphabet(alphabet string) (Generator, error) {
	if len(alphabet) == 0 || len(alphabet) > 256 || !distinct(alphabet) {
		return nil, errAlphabet
	}
	n := len(alphabet)
	return &randomGenerator{
		alphabet: alphabet,
		limit:    256 - 256%n,
	}, nil
}

// Generate draws length symbols uniformly from the alphabet.
func (g *randomGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= g.limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%len(g.alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether code is 1..MaxLength ASCII letters or digits.
func Valid(code string) bool {
	if len(code) == 0 || len(code) > MaxLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isAlnum(code[i]) {
			return false
		}
	}
	return true
}

// Sanitize drops every non-alphanumeric character and truncates the result
// to MaxLength. The output may be empty.
func Sanitize(s string) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < MaxLength; i++ {
		if isAlnum(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isAlnum(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	default:
		return false
	}
}

func distinct(s string) bool {
	var seen [256]bool
	for i := 0; i < len(s); i++ {
		if seen[s[i]] {
			return false
		}
		seen[s[i]] = true
	}
	return true
}
