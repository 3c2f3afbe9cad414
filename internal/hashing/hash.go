// Package hashing implements spec §4.1: deterministic content/metadata
// hashing over blake3, path normalization (delegated to internal/fs), glob
// expansion, and env-allowlist hashing. Every other component that needs a
// stable digest — the build graph's node hash, the output fingerprint,
// the install step's content-store keys — builds on the primitives here.
package hashing

import (
	"io"
	"os"

	"lukechampine.com/blake3"
)

// missingMarker is fed to the hasher in place of file content when a
// declared input file does not exist, so a missing-vs-present input still
// produces a stable, distinguishable hash (spec §4.1 "Input hash").
const missingMarker = "\x00howth:missing\x00"

// HashBytes returns the blake3 digest of b as 64 lowercase hex characters.
func HashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex(sum[:])
}

// HashString is the canonical string hash: blake3 of the UTF-8 bytes.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashFile returns the canonical file hash: blake3 of the file's contents.
// A missing file hashes to a stable "missing" marker rather than erroring,
// so callers building a node's input hash don't need special-case branches.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return HashString(missingMarker), nil
		}
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex(h.Sum(nil)), nil
}

// NewDigest returns a streaming blake3 hasher for callers that need to feed
// a canonical encoding incrementally (e.g. the node hash, which concatenates
// many sorted fields) rather than building the whole byte string up front.
func NewDigest() *Digest {
	return &Digest{h: blake3.New(32, nil)}
}

// Digest accumulates bytes into a running blake3 state.
type Digest struct {
	h *blake3.Hasher
}

// WriteString feeds s, followed by a NUL separator, into the digest. Every
// caller that builds a canonical encoding (spec §4.1 "Node hash") separates
// fields with NUL so that e.g. ("ab", "c") and ("a", "bc") never collide.
func (d *Digest) WriteString(s string) *Digest {
	d.h.Write([]byte(s))
	d.h.Write([]byte{0})
	return d
}

// Sum returns the final digest as 64 lowercase hex characters.
func (d *Digest) Sum() string {
	return hex(d.h.Sum(nil))
}

const hexDigits = "0123456789abcdef"

func hex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
