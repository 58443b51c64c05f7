package installer

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// hashFor picks the digest published alongside an archive. Catalogs publish
// SHA-512 sums unless the checksum file says otherwise.
func hashFor(checksumURL string) (string, func() hash.Hash) {
	if strings.Contains(strings.ToLower(checksumURL), "sha256") {
		return "sha256", sha256.New
	}
	return "sha512", sha512.New
}

// fileDigest returns the lowercase hex digest of the file at path.
func fileDigest(ctx context.Context, path string, newHash func() hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// checksumMatches reports whether text lists digest. Checksum files carry the
// file name next to the digest, so containment is enough.
func checksumMatches(text, digest string) bool {
	return digest != "" && strings.Contains(text, digest)
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
