// Package codes generates server secrets and human-typable join codes.
package codes

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const (
	// CodeAlphabet is the set of characters used in join codes.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultCodeLength is the length of join codes shown to players.
	DefaultCodeLength = 5
)

// Secrets issues opaque server secrets.
type Secrets struct{}

// NewSecret returns a random 32 character hex secret.
func (Secrets) NewSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Codes issues join codes of a fixed length.
type Codes struct {
	length int
}

// NewCodes returns a join code generator. A non-positive length falls back to DefaultCodeLength.
func NewCodes(length int) *Codes {
	if length <= 0 {
		length = DefaultCodeLength
	}

	return &Codes{length: length}
}

// NewCode returns a random code drawn from CodeAlphabet.
func (c *Codes) NewCode() string {
	buf := make([]byte, c.length)
	out := make([]byte, c.length)

	// Reject bytes above the largest multiple of the alphabet size to keep the draw uniform.
	limit := byte(256 - 256%len(CodeAlphabet))
	for i := 0; i < c.length; {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
			i++
			if i == c.length {
				break
			}
		}
	}

	return string(out)
}
