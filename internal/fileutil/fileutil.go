// Package fileutil copies files byte for byte with optional integrity checks.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrMismatch reports a copy whose size or digest differs from its source.
var ErrMismatch = errors.New("copy mismatch")

// CopyFile streams src to dst, creating dst's parent directory. It returns the
// number of bytes written.
func CopyFile(src, dst string) (int64, error) {
	return copyFile(src, dst, nil)
}

// CopyFileVerified streams src to dst while hashing both sides, and removes
// dst when the size or SHA-256 digest disagree.
func CopyFileVerified(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	srcHash := sha256.New()
	dstHash := sha256.New()
	written, err := copyFile(src, dst, &hashes{src: srcHash, dst: dstHash})
	if err != nil {
		return written, err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return written, fmt.Errorf("%w: source %d bytes, copied %d bytes", ErrMismatch, info.Size(), written)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
		_ = os.Remove(dst)
		return written, fmt.Errorf("%w: digest differs for %s", ErrMismatch, dst)
	}
	return written, nil
}

// SameContent reports whether a and b hold identical bytes. A missing file is
// never the same as an existing one.
func SameContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}
	sumA, err := digest(a)
	if err != nil {
		return false, err
	}
	sumB, err := digest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(sumA, sumB), nil
}

type hashes struct {
	src io.Writer
	dst io.Writer
}

func copyFile(src, dst string, h *hashes) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	var r io.Reader = in
	var w io.Writer = out
	if h != nil {
		r = io.TeeReader(in, h.src)
		w = io.MultiWriter(out, h.dst)
	}
	written, err := io.Copy(w, r)
	if err != nil {
		_ = out.Close()
		return written, err
	}
	return written, out.Close()
}

func digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
