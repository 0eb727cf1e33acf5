package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hashing modes accepted by NewHasher.
const (
	HashingPlain    = "plain"
	HashingArgon2id = "argon2id"
)

// Hasher turns a password into its stored form and checks candidates
// against it.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) (bool, error)
	// Comparable reports whether stored values can be matched with SQL
	// equality, so lookups can filter on the password column directly.
	Comparable() bool
}

// NewHasher returns the hasher for mode. An empty mode selects plain.
func NewHasher(mode string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", HashingPlain:
		return PlainHasher{}, nil
	case HashingArgon2id:
		return Argon2idHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hashing mode: %s", mode)
	}
}

// PlainHasher stores passwords as given and compares them byte for byte.
type PlainHasher struct{}

func (PlainHasher) Hash(password string) (string, error) { return password, nil }

func (PlainHasher) Verify(password, stored string) (bool, error) {
	return password == stored, nil
}

func (PlainHasher) Comparable() bool { return true }

// Argon2id parameters, OWASP recommendation.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1

	// Upper bounds accepted from stored hashes.
	argonMaxTime    = 64
	argonMaxMemory  = 1024 * 1024
	argonMaxThreads = 16
	argonMaxKeyLen  = 1024
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Argon2idHasher stores PHC strings: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
type Argon2idHasher struct{}

func (Argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func (Argon2idHasher) Verify(password, stored string) (bool, error) {
	salt, hash, params, err := decodePHC(stored)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(hash)))

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

func (Argon2idHasher) Comparable() bool { return false }

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	// argon2.IDKey panics on zero rounds or threads
	if params.time < 1 || params.time > argonMaxTime ||
		params.threads < 1 || params.threads > argonMaxThreads ||
		params.memory < 8*uint32(params.threads) || params.memory > argonMaxMemory {
		return nil, nil, params, fmt.Errorf("argon2 parameters out of range: m=%d,t=%d,p=%d",
			params.memory, params.time, params.threads)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(salt) == 0 || len(hash) == 0 || len(hash) > argonMaxKeyLen {
		return nil, nil, params, fmt.Errorf("salt or hash length out of range")
	}

	return salt, hash, params, nil
}
