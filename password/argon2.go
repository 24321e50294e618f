// Package password hashes and verifies login credentials with argon2id,
// encoded in PHC string format so parameters can be upgraded over time.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minSaltLength         = 16
	minPasswordLen        = 10
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// Params are the argon2id cost parameters.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP-recommended argon2id configuration.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates the cost parameters and returns a Hasher.
func NewHasher(p Params) (*Hasher, error) {
	if p.MemoryKB < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be at least %d KB", minMemoryKB)
	}
	if p.Iterations < 1 {
		return nil, errors.New("argon2 iterations must be at least 1")
	}
	if p.Parallelism < 1 {
		return nil, errors.New("argon2 parallelism must be at least 1")
	}
	if p.SaltLength < minSaltLength {
		return nil, fmt.Errorf("argon2 salt must be at least %d bytes", minSaltLength)
	}
	if p.KeyLength < 16 {
		return nil, errors.New("argon2 key must be at least 16 bytes")
	}
	return &Hasher{params: p}, nil
}

// Hash derives an argon2id hash from the password and returns it in PHC
// format. Passwords are hashed byte-for-byte as provided, without Unicode
// normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d bytes", minPasswordLen)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password), salt,
		h.params.Iterations, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.MemoryKB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash under the encoded hash's own parameters and
// compares in constant time. A mismatch is (false, nil); only a malformed
// encoded hash is an error.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password), parsed.salt,
		parsed.iterations, parsed.memoryKB, parsed.parallelism, uint32(len(parsed.key)),
	)
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsRehash reports whether the encoded hash was produced with weaker
// parameters than this Hasher's, meaning the credential should be re-hashed
// on the next successful login.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if h.params.MemoryKB > parsed.memoryKB ||
		h.params.Iterations > parsed.iterations ||
		h.params.Parallelism > parsed.parallelism ||
		h.params.KeyLength != uint32(len(parsed.key)) {
		return true, nil
	}
	return false, nil
}

type phc struct {
	memoryKB    uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version", ErrMalformedHash)
	}

	var out phc
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, ErrMalformedHash
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v == 0 {
				return nil, fmt.Errorf("%w: bad memory parameter", ErrMalformedHash)
			}
			out.memoryKB = uint32(v)
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v == 0 {
				return nil, fmt.Errorf("%w: bad time parameter", ErrMalformedHash)
			}
			out.iterations = uint32(v)
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v == 0 {
				return nil, fmt.Errorf("%w: bad parallelism parameter", ErrMalformedHash)
			}
			out.parallelism = uint8(v)
		default:
			return nil, ErrMalformedHash
		}
	}
	if out.memoryKB == 0 || out.iterations == 0 || out.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < minSaltLength {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}

	out.salt = salt
	out.key = key
	return &out, nil
}
