package ttyrec

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Extensions used for live and archived recordings.
const (
	Ext           = ".ttyrec"
	CompressedExt = ".ttyrec.zst"
)

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}

// Open opens a recording for reading, decompressing .zst archives.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ttyrec: open %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ttyrec: zstd reader for %s: %w", path, err)
	}
	return &zstdReadCloser{dec: dec, file: f}, nil
}

// Compress writes a zstd-compressed copy of the recording at src to dst.
// dst is created exclusively and synced before returning; src is left in
// place for the caller to remove.
func Compress(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ttyrec: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("ttyrec: create %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("ttyrec: zstd writer: %w", err)
	}
	if _, err = io.Copy(enc, in); err != nil {
		enc.Close()
		return fmt.Errorf("ttyrec: compress %s: %w", src, err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("ttyrec: finish %s: %w", dst, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("ttyrec: sync %s: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("ttyrec: close %s: %w", dst, err)
	}
	return nil
}
