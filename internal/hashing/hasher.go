// Package hashing derives content-addressed file names for published assets.
//
// The digest is an explicit build parameter rather than a library default. MD5 is
// the default: names only need to change when content changes, so collision
// resistance against an attacker is not a requirement. xxhash is offered for large
// bundles where hashing time shows up in the build report.
package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Algorithm names a digest used for published file names.
type Algorithm string

const (
	// MD5 produces 32 hex characters.
	MD5 Algorithm = "md5"
	// XXHash produces 16 hex characters (xxh64).
	XXHash Algorithm = "xxhash"
)

var (
	// ErrMissingExtension is returned for logical paths whose file name has no extension.
	ErrMissingExtension = errors.New("logical path has no file extension")
	// ErrUnknownAlgorithm is returned by New for unsupported digests.
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
)

// ParseAlgorithm validates a configured algorithm name. An empty name selects MD5.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", MD5:
		return MD5, nil
	case XXHash:
		return XXHash, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// Hasher computes digests and published paths. It is safe for concurrent use.
type Hasher struct {
	algorithm Algorithm
	cache     *DigestCache
}

// New creates a Hasher. cache may be nil.
func New(algorithm Algorithm, cache *DigestCache) (*Hasher, error) {
	if _, err := ParseAlgorithm(string(algorithm)); err != nil {
		return nil, err
	}
	if algorithm == "" {
		algorithm = MD5
	}
	return &Hasher{algorithm: algorithm, cache: cache}, nil
}

// Algorithm returns the digest in use.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Digest returns the lowercase hex digest of content.
func (h *Hasher) Digest(content []byte) string {
	switch h.algorithm {
	case XXHash:
		return fmt.Sprintf("%016x", xxhash.Sum64(content))
	default:
		sum := md5.Sum(content)
		return hex.EncodeToString(sum[:])
	}
}

// DigestCached is Digest memoized on the content itself, so a hit is only
// possible for identical bytes under the same algorithm.
func (h *Hasher) DigestCached(content []byte) string {
	if h.cache == nil || h.algorithm == XXHash {
		return h.Digest(content)
	}
	key := KeyOf(h.algorithm, content)
	if digest, ok := h.cache.Get(key); ok {
		return digest
	}
	digest := h.Digest(content)
	h.cache.Add(key, digest)
	return digest
}

// DerivePublishedPath splices the digest of content into logicalPath right before
// the extension: "assets/app.js" becomes "assets/app-<digest>.js". Every directory
// segment and any leading slash are kept.
func (h *Hasher) DerivePublishedPath(logicalPath string, content []byte) (string, error) {
	return h.derive(logicalPath, h.Digest(content))
}

// DerivePublishedPathCached is DerivePublishedPath using the digest cache.
func (h *Hasher) DerivePublishedPathCached(logicalPath string, content []byte) (string, error) {
	return h.derive(logicalPath, h.DigestCached(content))
}

func (h *Hasher) derive(logicalPath, digest string) (string, error) {
	dir, stem, ext, err := SplitPath(logicalPath)
	if err != nil {
		return "", err
	}
	return dir + stem + "-" + digest + ext, nil
}

// SplitPath splits a slash-separated logical path into its directory prefix
// (including the trailing slash), file stem and extension (including the dot).
// The extension is everything after the last dot of the file name.
func SplitPath(logicalPath string) (dir, stem, ext string, err error) {
	slash := strings.LastIndex(logicalPath, "/")
	dir, name := logicalPath[:slash+1], logicalPath[slash+1:]

	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return "", "", "", fmt.Errorf("%w: %s", ErrMissingExtension, logicalPath)
	}
	return dir, name[:dot], name[dot:], nil
}

// ValidateExtension returns ErrMissingExtension when logicalPath cannot be hashed.
func ValidateExtension(logicalPath string) error {
	_, _, _, err := SplitPath(logicalPath)
	return err
}
