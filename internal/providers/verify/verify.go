// Package verify checks a downloaded package before it is unpacked.
package verify

import (
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

var (
	ErrSizeMismatch   = errors.New("package size mismatch")
	ErrDigestMismatch = errors.New("package digest mismatch")
	ErrBadDigest      = errors.New("malformed package digest")
	ErrMediaType      = errors.New("package is not a supported archive")
	ErrSignature      = errors.New("package signature rejected")
)

// SupportedMediaTypes lists the archive formats accepted as packages
var SupportedMediaTypes = []string{
	"application/zip",
	"application/x-tar",
	"application/gzip",
	"application/x-gzip",
	"application/zstd",
}

// Expected describes what the update manifest promised
type Expected struct {
	AppID  string
	Size   uint64
	Digest string
}

// Result is the outcome of a successful verification
type Result struct {
	Size      int64
	Digest    digest.Digest
	MediaType string
}

// SignatureChecker is an external pass/fail signature oracle
type SignatureChecker interface {
	CheckSignature(ctx context.Context, path string, expected Expected) error
}

// SignatureFunc adapts a function to SignatureChecker
type SignatureFunc func(ctx context.Context, path string, expected Expected) error

func (f SignatureFunc) CheckSignature(ctx context.Context, path string, expected Expected) error {
	return f(ctx, path, expected)
}

// Verifier checks size, digest, archive type and signature of a package
type Verifier struct {
	signature SignatureChecker
	logger    *zap.Logger
}

// New creates a verifier; signature may be nil
func New(signature SignatureChecker, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{signature: signature, logger: logger}
}

// ParseDigest accepts "algorithm:hex" or a bare sha256 hex string
func ParseDigest(s string) (digest.Digest, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		s = string(digest.SHA256) + ":" + strings.ToLower(s)
	}
	d, err := digest.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadDigest, err)
	}
	if !d.Algorithm().Available() {
		return "", fmt.Errorf("%w: algorithm %s unavailable", ErrBadDigest, d.Algorithm())
	}
	return d, nil
}

// Verify checks the package at path. Any failure means the package must be
// discarded without being unpacked.
func (v *Verifier) Verify(ctx context.Context, path string, expected Expected) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat package: %w", err)
	}
	if expected.Size > 0 && uint64(info.Size()) != expected.Size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, expected.Size, info.Size())
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect package type: %w", err)
	}
	if !supported(mtype) {
		return nil, fmt.Errorf("%w: %s", ErrMediaType, mtype.String())
	}

	computed, err := v.checkDigest(ctx, path, expected.Digest)
	if err != nil {
		return nil, err
	}

	if v.signature != nil {
		if err := v.signature.CheckSignature(ctx, path, expected); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignature, err)
		}
	}

	v.logger.Debug("Package verified",
		zap.String("app_id", expected.AppID),
		zap.String("digest", computed.String()),
		zap.String("media_type", mtype.String()))

	return &Result{Size: info.Size(), Digest: computed, MediaType: mtype.String()}, nil
}

// checkDigest streams the file once, computing the canonical digest and the
// expected one when it uses another algorithm
func (v *Verifier) checkDigest(ctx context.Context, path, expected string) (digest.Digest, error) {
	var want digest.Digest
	if expected != "" {
		d, err := ParseDigest(expected)
		if err != nil {
			return "", err
		}
		want = d
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open package: %w", err)
	}
	defer f.Close()

	canonical := digest.Canonical.Digester()
	writers := []io.Writer{canonical.Hash()}
	var verifier digest.Verifier
	if want != "" && want.Algorithm() != digest.Canonical {
		verifier = want.Verifier()
		writers = append(writers, verifier)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), &ctxReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("read package: %w", err)
	}

	got := canonical.Digest()
	switch {
	case want == "":
	case verifier != nil:
		if !verifier.Verified() {
			return "", fmt.Errorf("%w: expected %s", ErrDigestMismatch, want)
		}
	case got != want:
		return "", fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, want, got)
	}
	return got, nil
}

func supported(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		for _, s := range SupportedMediaTypes {
			if m.Is(s) {
				return true
			}
		}
	}
	return false
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
