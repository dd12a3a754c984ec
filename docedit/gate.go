package docedit

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// zipMagic is the ZIP local-file-header signature ("PK\x03\x04").
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// ValidateSignature checks that buf starts with the ZIP magic. It is the
// cheapest rejection and runs before anything else touches the upload.
func ValidateSignature(buf []byte) error {
	if len(buf) < len(zipMagic) || !bytes.Equal(buf[:len(zipMagic)], zipMagic) {
		return ErrInvalidFormat
	}
	return nil
}

// CheckExpansionRatio rejects suspected decompression bombs by summing the
// declared uncompressed sizes from the central directory. No entry payload
// is ever decompressed here — zip.NewReader only parses the directory.
//
// The declared sizes are attacker-controlled metadata, so this is a fast
// first filter only; the repacker enforces a hard cap on bytes actually
// inflated later.
func CheckExpansionRatio(buf []byte, maxRatio float64, maxAbsoluteBytes int64) error {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	var total uint64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		total += f.UncompressedSize64
	}

	if total > uint64(maxAbsoluteBytes) {
		return fmt.Errorf("%w: declares %d uncompressed bytes (max %d)",
			ErrBombSuspected, total, maxAbsoluteBytes)
	}
	ratio := float64(total) / float64(len(buf))
	if ratio > maxRatio {
		return fmt.Errorf("%w: expansion ratio %.1f exceeds %.1f",
			ErrBombSuspected, ratio, maxRatio)
	}
	return nil
}
