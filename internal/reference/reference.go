// Package reference allocates the human-shareable reference numbers that
// address listings without authentication.
//
// A reference looks like EQ-261014-7K3QZ9: a fixed prefix, the UTC creation
// date and a random Crockford base32 suffix. Uniqueness is checked against the
// store before use and retried a bounded number of times; after that a longer
// suffix is returned unchecked. The store's unique constraint remains the
// final guarantee.
package reference

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/MrJamesThe3rd/ironyard/internal/clock"
)

const (
	prefix = "EQ"
	// Crockford base32: no I, L, O or U, so references survive being read aloud.
	alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

	suffixLen          = 6
	fallbackExtraLen   = 4
	defaultMaxAttempts = 5
)

// Checker reports whether a reference number is already taken.
type Checker interface {
	ReferenceExists(ctx context.Context, ref string) (bool, error)
}

type Allocator struct {
	checker     Checker
	clock       clock.Clock
	random      io.Reader
	maxAttempts int
}

type Option func(*Allocator)

// WithRandom replaces the entropy source (crypto/rand by default).
func WithRandom(r io.Reader) Option {
	return func(a *Allocator) {
		a.random = r
	}
}

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func NewAllocator(checker Checker, clk clock.Clock, opts ...Option) *Allocator {
	a := &Allocator{
		checker:     checker,
		clock:       clk,
		random:      rand.Reader,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Allocate returns a reference number not currently present in the store.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	stamp := a.clock.Now().UTC().Format("060102")

	for range a.maxAttempts {
		ref, err := a.candidate(stamp, suffixLen)
		if err != nil {
			return "", err
		}

		exists, err := a.checker.ReferenceExists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("checking reference %s: %w", ref, err)
		}

		if !exists {
			return ref, nil
		}
	}

	ref, err := a.candidate(stamp, suffixLen+fallbackExtraLen)
	if err != nil {
		return "", err
	}

	return ref, nil
}

func (a *Allocator) candidate(stamp string, n int) (string, error) {
	suffix, err := a.randomString(n)
	if err != nil {
		return "", err
	}

	return prefix + "-" + stamp + "-" + suffix, nil
}

func (a *Allocator) randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(a.random, buf); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}

	var sb strings.Builder
	sb.Grow(n)

	// 256 is a multiple of 32, so the modulo keeps the distribution uniform.
	for _, b := range buf {
		sb.WriteByte(alphabet[int(b)%len(alphabet)])
	}

	return sb.String(), nil
}

// Valid reports whether s has the shape of a reference number. It does not
// say whether the reference exists.
func Valid(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != prefix || len(parts[1]) != 6 {
		return false
	}

	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return false
		}
	}

	if l := len(parts[2]); l != suffixLen && l != suffixLen+fallbackExtraLen {
		return false
	}

	for _, r := range parts[2] {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}

	return true
}
