package hash

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// nix32Alphabet is Nix's base32 alphabet (no e, o, u, t).
const nix32Alphabet = "0123456789abcdfghijklmnpqrsvwxyz"

// sha256Size is the digest length in bytes.
const sha256Size = 32

// Nix32ToSRI converts a base32 sha256 digest as printed by
// nix-prefetch-url into SRI format. A "sha256:" prefix is accepted.
func Nix32ToSRI(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "sha256:")
	digest, err := decodeNix32(s, sha256Size)
	if err != nil {
		return "", err
	}
	return ToSRI(digest), nil
}

// SRIToNix32 converts an SRI sha256 hash to Nix's base32 form.
func SRIToNix32(sri string) (string, error) {
	algo, digest, err := ParseSRI(sri)
	if err != nil {
		return "", err
	}
	if algo != "sha256" || len(digest) != sha256Size {
		return "", fmt.Errorf("not a sha256 SRI hash: %s", sri)
	}
	return encodeNix32(digest), nil
}

func nix32Len(size int) int {
	return (size*8-1)/5 + 1
}

// encodeNix32 emits the least significant 5-bit group last.
func encodeNix32(digest []byte) string {
	n := nix32Len(len(digest))
	var b strings.Builder
	b.Grow(n)
	for pos := n - 1; pos >= 0; pos-- {
		bit := pos * 5
		i, j := bit/8, uint(bit%8)
		c := digest[i] >> j
		if i+1 < len(digest) {
			c |= digest[i+1] << (8 - j)
		}
		b.WriteByte(nix32Alphabet[c&0x1f])
	}
	return b.String()
}

func decodeNix32(s string, size int) ([]byte, error) {
	if len(s) != nix32Len(size) {
		return nil, fmt.Errorf("invalid nix32 hash length %d, want %d", len(s), nix32Len(size))
	}

	out := make([]byte, size)
	for k := 0; k < len(s); k++ {
		digit := strings.IndexByte(nix32Alphabet, s[k])
		if digit < 0 {
			return nil, fmt.Errorf("invalid nix32 character %q", s[k])
		}
		pos := len(s) - 1 - k
		bit := pos * 5
		i, j := bit/8, uint(bit%8)
		out[i] |= byte(digit << j)
		carry := byte(digit >> (8 - j))
		if i+1 < size {
			out[i+1] |= carry
		} else if carry != 0 {
			return nil, fmt.Errorf("invalid nix32 hash: %s", s)
		}
	}
	return out, nil
}

// ParseSRI parses an SRI hash string and returns the algorithm and digest.
func ParseSRI(sri string) (algorithm string, digest []byte, err error) {
	algorithm, encoded, ok := strings.Cut(sri, "-")
	if !ok || algorithm == "" {
		return "", nil, fmt.Errorf("invalid SRI format: %s", sri)
	}

	// Some tools print hex after the dash. Hex digests of sha256/sha512
	// also happen to be valid base64, so check them first.
	if len(encoded) == 64 || len(encoded) == 128 {
		if digest, err = hex.DecodeString(encoded); err == nil {
			return algorithm, digest, nil
		}
	}

	digest, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decoding hash: %w", err)
	}

	return algorithm, digest, nil
}

// ValidateSRI checks if an SRI hash string is valid.
func ValidateSRI(sri string) error {
	algo, digest, err := ParseSRI(sri)
	if err != nil {
		return err
	}

	switch algo {
	case "sha256":
		if len(digest) != 32 {
			return fmt.Errorf("sha256 hash must be 32 bytes, got %d", len(digest))
		}
	case "sha512":
		if len(digest) != 64 {
			return fmt.Errorf("sha512 hash must be 64 bytes, got %d", len(digest))
		}
	default:
		return fmt.Errorf("unsupported algorithm: %s", algo)
	}

	return nil
}
