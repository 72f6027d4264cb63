// Package encode turns unbounded strings into bounded, deterministic integer
// features. It is the leaf of the observation pipeline: pure functions, no
// I/O, no panics for any input.
package encode

import (
	"crypto/sha256"
	"encoding/binary"
	"iter"
	"strings"
	"unicode"
)

// TokenHasher maps a token into a bounded integer id. The only contract is
// "same input, same id, every process, every run": implementations must not
// rely on any runtime's ambient string-hash seed. The scheme is a deliberate
// placeholder for a learned embedding, so it stays swappable.
type TokenHasher interface {
	HashToken(token string, vocabSize int) int32
}

// SHA256Hasher derives token ids from the first eight bytes of a SHA-256
// digest. Cryptographic hashing is overkill for feature bucketing but gives
// the cross-process reproducibility the contract demands for free.
type SHA256Hasher struct{}

// HashToken returns a deterministic id in [0, vocabSize). A non-positive
// vocabulary collapses every token to 0.
func (SHA256Hasher) HashToken(token string, vocabSize int) int32 {
	if vocabSize <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(token))
	return int32(binary.BigEndian.Uint64(sum[:8]) % uint64(vocabSize))
}

// Tokenize lowercases the text and yields maximal runs of word characters
// (letters, digits, underscore), lazily. Each returned sequence is
// independent: ranging it never mutates shared state, and repeated calls over
// the same text yield the same tokens.
func Tokenize(text string) iter.Seq[string] {
	lower := strings.ToLower(text)
	return func(yield func(string) bool) {
		start := -1
		for i, r := range lower {
			if isWordRune(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(lower[start:i]) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(lower[start:])
		}
	}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokens collects the full token sequence. Convenience for callers that need
// counts rather than laziness.
func Tokens(text string) []string {
	var out []string
	for tok := range Tokenize(text) {
		out = append(out, tok)
	}
	return out
}

// TokenSet collects the distinct tokens of the text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Encoder binds a hasher to the encoding operations. The zero value is not
// usable; construct with New.
type Encoder struct {
	hasher TokenHasher
}

// New returns an Encoder over the given hasher. A nil hasher selects the
// SHA-256 default.
func New(hasher TokenHasher) *Encoder {
	if hasher == nil {
		hasher = SHA256Hasher{}
	}
	return &Encoder{hasher: hasher}
}

// EncodeText renders text as exactly limit token ids: tokens beyond the limit
// are dropped, missing slots stay zero. Empty input yields the all-zero
// array. A non-positive limit yields an empty array.
func (e *Encoder) EncodeText(text string, limit, vocabSize int) []int32 {
	if limit <= 0 {
		return []int32{}
	}
	out := make([]int32, limit)
	i := 0
	for tok := range Tokenize(text) {
		if i >= limit {
			break
		}
		out[i] = e.hasher.HashToken(tok, vocabSize)
		i++
	}
	return out
}

// HashToken exposes the underlying hasher for single-identifier features such
// as the URL id.
func (e *Encoder) HashToken(token string, vocabSize int) int32 {
	return e.hasher.HashToken(token, vocabSize)
}
