package trie

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Symbol is one key position: a byte value (0-255) or Wildcard.
type Symbol uint16

// Wildcard matches any byte at its position.
const Wildcard Symbol = 256

// Key is a sequence of symbols.
type Key []Symbol

var (
	ErrInvalidSymbol  = errors.New("symbol out of range")
	ErrInvalidPattern = errors.New("invalid key pattern")
)

// FromBytes converts raw bytes into a key without wildcards.
func FromBytes(b []byte) Key {
	key := make(Key, len(b))
	for i, c := range b {
		key[i] = Symbol(c)
	}
	return key
}

// Validate rejects keys holding values outside the byte-or-wildcard alphabet.
// The index itself never validates; callers handling untrusted keys should.
func Validate(key Key) error {
	for i, s := range key {
		if s > Wildcard {
			return fmt.Errorf("%w: %d at position %d", ErrInvalidSymbol, s, i)
		}
	}
	return nil
}

// ParsePattern parses a whitespace separated hex pattern such as
// "89 50 4E 47 ?? ??" where "??" stands for Wildcard.
func ParsePattern(pattern string) (Key, error) {
	fields := strings.Fields(pattern)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}

	key := make(Key, 0, len(fields))
	for _, f := range fields {
		if f == "??" {
			key = append(key, Wildcard)
			continue
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, f)
		}
		key = append(key, Symbol(v))
	}
	return key, nil
}

// String renders the key in the ParsePattern format.
func (k Key) String() string {
	var sb strings.Builder
	for i, s := range k {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if s == Wildcard {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02X", uint8(s))
	}
	return sb.String()
}
