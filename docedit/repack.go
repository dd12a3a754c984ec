package docedit

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Repacker rewrites an archive with maximum-strength deflate. The editing
// engine exports entries stored uncompressed for speed; repacking typically
// shrinks the document several-fold. Repack failure is an optimization
// failure, not a correctness failure — callers fall back to the unpacked
// buffer.
type Repacker struct {
	// MaxBytes caps the total bytes inflated while reading entry payloads.
	// This is the hard backstop behind the metadata-only gate check: here
	// the archive really is decompressed, so forged central-directory
	// sizes no longer help an attacker.
	MaxBytes int64
}

// RepackError wraps any read or write failure during repacking.
type RepackError struct {
	Entry string
	Err   error
}

func (e *RepackError) Error() string {
	if e.Entry == "" {
		return "repack: " + e.Err.Error()
	}
	return fmt.Sprintf("repack %s: %v", e.Entry, e.Err)
}

func (e *RepackError) Unwrap() error { return e.Err }

// Repack reads every non-directory entry and writes a new archive with
// BestCompression deflate, preserving entry paths exactly.
func (r *Repacker) Repack(buf []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, &RepackError{Err: err}
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	budget := r.MaxBytes
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := r.copyEntry(zw, f, &budget); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, &RepackError{Err: err}
	}
	return out.Bytes(), nil
}

func (r *Repacker) copyEntry(zw *zip.Writer, f *zip.File, budget *int64) error {
	rc, err := f.Open()
	if err != nil {
		return &RepackError{Entry: f.Name, Err: err}
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     f.Name,
		Method:   zip.Deflate,
		Modified: f.Modified,
	})
	if err != nil {
		return &RepackError{Entry: f.Name, Err: err}
	}

	if r.MaxBytes > 0 {
		n, err := io.Copy(w, io.LimitReader(rc, *budget+1))
		if err != nil {
			return &RepackError{Entry: f.Name, Err: err}
		}
		*budget -= n
		if *budget < 0 {
			return &RepackError{Entry: f.Name, Err: ErrBombSuspected}
		}
		return nil
	}
	if _, err := io.Copy(w, rc); err != nil {
		return &RepackError{Entry: f.Name, Err: err}
	}
	return nil
}
