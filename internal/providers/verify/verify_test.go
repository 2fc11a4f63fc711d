package verify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePackage(t *testing.T) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("manifest.webmanifest")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"name":"Clock"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "tx.pkg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path, buf.Bytes()
}

func TestVerifyAcceptsMatchingPackage(t *testing.T) {
	path, data := writePackage(t)
	sum := sha256.Sum256(data)

	tests := []struct {
		name   string
		digest string
	}{
		{"prefixed", "sha256:" + hex.EncodeToString(sum[:])},
		{"bare hex", hex.EncodeToString(sum[:])},
		{"no digest", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(nil, nil).Verify(context.Background(), path, Expected{
				Size:   uint64(len(data)),
				Digest: tt.digest,
			})
			require.NoError(t, err)
			assert.Equal(t, "sha256:"+hex.EncodeToString(sum[:]), res.Digest.String())
			assert.Equal(t, "application/zip", res.MediaType)
			assert.Equal(t, int64(len(data)), res.Size)
		})
	}
}

func TestVerifyOtherAlgorithm(t *testing.T) {
	path, data := writePackage(t)
	sum := sha512.Sum512(data)

	_, err := New(nil, nil).Verify(context.Background(), path, Expected{Digest: "sha512:" + hex.EncodeToString(sum[:])})
	require.NoError(t, err)

	sum[0] ^= 0xff
	_, err = New(nil, nil).Verify(context.Background(), path, Expected{Digest: "sha512:" + hex.EncodeToString(sum[:])})
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestVerifyRejects(t *testing.T) {
	path, data := writePackage(t)
	wrong := sha256.Sum256([]byte("other"))

	textPath := filepath.Join(t.TempDir(), "plain.pkg")
	require.NoError(t, os.WriteFile(textPath, []byte("hello world"), 0644))

	tests := []struct {
		name     string
		path     string
		expected Expected
		err      error
	}{
		{"size", path, Expected{Size: uint64(len(data)) + 1}, ErrSizeMismatch},
		{"digest", path, Expected{Digest: "sha256:" + hex.EncodeToString(wrong[:])}, ErrDigestMismatch},
		{"malformed digest", path, Expected{Digest: "sha256:xyz"}, ErrBadDigest},
		{"not an archive", textPath, Expected{}, ErrMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, nil).Verify(context.Background(), tt.path, tt.expected)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestVerifySignatureOracle(t *testing.T) {
	path, _ := writePackage(t)

	var seen Expected
	accept := SignatureFunc(func(ctx context.Context, p string, e Expected) error {
		seen = e
		return nil
	})
	_, err := New(accept, nil).Verify(context.Background(), path, Expected{AppID: "clock"})
	require.NoError(t, err)
	assert.Equal(t, "clock", seen.AppID)

	reject := SignatureFunc(func(context.Context, string, Expected) error {
		return errors.New("untrusted signer")
	})
	_, err = New(reject, nil).Verify(context.Background(), path, Expected{})
	assert.ErrorIs(t, err, ErrSignature)
}

func TestVerifyHonoursCancellation(t *testing.T) {
	path, _ := writePackage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil, nil).Verify(ctx, path, Expected{})
	assert.ErrorIs(t, err, context.Canceled)
}
