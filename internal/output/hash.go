package output

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm names a digest computed over the extracted bytes
type HashAlgorithm string

// Supported digests
const (
	HashNone    HashAlgorithm = ""
	HashMD5     HashAlgorithm = "md5"
	HashSHA1    HashAlgorithm = "sha1"
	HashSHA256  HashAlgorithm = "sha256"
	HashSHA512  HashAlgorithm = "sha512"
	HashBLAKE2b HashAlgorithm = "blake2b"
)

// ParseHashAlgorithm maps a configuration value to an algorithm
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch a := HashAlgorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case HashNone, HashMD5, HashSHA1, HashSHA256, HashSHA512, HashBLAKE2b:
		return a, nil
	case "none":
		return HashNone, nil
	default:
		return "", fmt.Errorf("unsupported hash %q (valid: md5, sha1, sha256, sha512, blake2b)", name)
	}
}

// NewHash returns a fresh digest, nil for HashNone. BLAKE2b uses the 256-bit variant.
func NewHash(a HashAlgorithm) (hash.Hash, error) {
	switch a {
	case HashNone:
		return nil, nil
	case HashMD5:
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	case HashBLAKE2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blake2b hash: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported hash %q", a)
	}
}
