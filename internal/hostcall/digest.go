package hostcall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

var hashes = map[string]func() hash.Hash{
	"sha256":      sha256.New,
	"sha3-256":    sha3.New256,
	"sha3-512":    sha3.New512,
	"blake2b-256": mustBlake(blake2b.New256),
	"blake2b-512": mustBlake(blake2b.New512),
}

func mustBlake(fn func(key []byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := fn(nil)
		if err != nil {
			panic(err) // unkeyed construction cannot fail
		}
		return h
	}
}

// Digest hashes binary data
type Digest struct{}

// NewDigest creates the digest provider
func NewDigest() *Digest {
	return &Digest{}
}

// Algorithms lists supported digest names
func Algorithms() []string {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods returns digest method definitions
func (d *Digest) Methods() []Method {
	return []Method{
		{
			Name:        "hash.digest",
			Description: "Hex digest of data",
			Parameters: []Parameter{
				{Name: "data", Type: "bytes", Description: "Bytes or base64 string", Required: true},
				{Name: "algorithm", Type: "string", Description: "sha256 (default), sha3-256, sha3-512, blake2b-256, blake2b-512", Required: false},
			},
			Returns: "string",
		},
	}
}

// Execute computes the digest
func (d *Digest) Execute(_ context.Context, method string, params Params) (any, error) {
	if method != "hash.digest" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	data, err := params.Bytes("data")
	if err != nil {
		return nil, err
	}
	algorithm := params.StringOr("algorithm", "sha256")
	newHash, ok := hashes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidParams, algorithm)
	}
	h := newHash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
