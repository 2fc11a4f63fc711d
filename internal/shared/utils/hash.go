package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// MaxSanitizedNameLength bounds the name part of an app id
const MaxSanitizedNameLength = 64

// ReservedNames cannot be used as app ids
var ReservedNames = map[string]bool{
	"cached": true,
}

// ErrInvalidAppName is returned when a name sanitizes to nothing or to a reserved id
var ErrInvalidAppName = errors.New("invalid app name")

// Hasher provides extensible hashing functionality
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash computes a hex digest of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:])
	default:
		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// SanitizeName trims and lower-cases name and keeps ASCII alphanumerics only
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AppIdentifier derives stable app ids from an app's identity
type AppIdentifier struct {
	hasher *Hasher
}

// NewAppIdentifier creates a new app identifier
func NewAppIdentifier(hasher *Hasher) *AppIdentifier {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &AppIdentifier{hasher: hasher}
}

// AppID derives the registry key of an app from its manifest name and the
// origin it is published from. Apps without an origin are keyed by name.
func (ai *AppIdentifier) AppID(name, origin string) (string, error) {
	sanitized := SanitizeName(name)
	if sanitized == "" || ReservedNames[sanitized] {
		return "", ErrInvalidAppName
	}
	if len(sanitized) > MaxSanitizedNameLength {
		sanitized = sanitized[:MaxSanitizedNameLength]
	}
	if origin == "" {
		return sanitized, nil
	}
	return sanitized + "-" + ai.ShortHash(ai.hasher.HashString(strings.ToLower(origin))), nil
}

// ShortHash generates a short (8-character) hash for display
func (ai *AppIdentifier) ShortHash(fullHash string) string {
	if len(fullHash) < 8 {
		return fullHash
	}
	return fullHash[:8]
}
