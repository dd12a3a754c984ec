package docedit

import "errors"

// Sentinel errors for the caller-visible failure taxonomy. Handlers map
// these to envelope codes; anything else is reported as internal.
var (
	// ErrInvalidFormat — the buffer does not start with the ZIP local-file
	// header magic.
	ErrInvalidFormat = errors.New("redline: not a zip archive")

	// ErrCorruptArchive — the central directory could not be parsed.
	ErrCorruptArchive = errors.New("redline: corrupt archive")

	// ErrBombSuspected — declared uncompressed size is disproportionate to
	// the upload, or exceeds the absolute cap.
	ErrBombSuspected = errors.New("redline: decompression bomb suspected")

	// ErrOverloaded — no session slot became free within the admission wait.
	ErrOverloaded = errors.New("redline: too many concurrent sessions")

	// ErrUnparseable — structurally valid archive, but the editing engine
	// rejected it as document content. Distinct from gate rejections: the
	// client sent a real ZIP that is not a usable document.
	ErrUnparseable = errors.New("redline: archive is not a valid document")
)
