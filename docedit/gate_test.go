package docedit

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSignature(t *testing.T) {
	valid := buildZip(t, map[string]string{"word/document.xml": "<w:document/>"})

	tests := []struct {
		name string
		buf  []byte
		err  error
	}{
		{"valid zip", valid, nil},
		{"empty", nil, ErrInvalidFormat},
		{"too short", []byte{0x50, 0x4b}, ErrInvalidFormat},
		{"pdf magic", []byte("%PDF-1.7 rest of file"), ErrInvalidFormat},
		{"plain text", []byte("hello world, this is not a zip"), ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignature(tt.buf)
			if !errors.Is(err, tt.err) {
				t.Fatalf("got %v, want %v", err, tt.err)
			}
		})
	}
}

func TestCheckExpansionRatio_Accepts(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"word/document.xml":   "<w:document>" + strings.Repeat("x", 2000) + "</w:document>",
		"[Content_Types].xml": "<Types/>",
	})
	if err := CheckExpansionRatio(buf, 100, 500*1024*1024); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestCheckExpansionRatio_RejectsHighRatio(t *testing.T) {
	// A megabyte of a single byte deflates to almost nothing, so the declared
	// uncompressed total dwarfs the archive size.
	buf := buildZip(t, map[string]string{
		"word/document.xml": strings.Repeat("a", 4*1024*1024),
	})
	err := CheckExpansionRatio(buf, 100, 500*1024*1024)
	if !errors.Is(err, ErrBombSuspected) {
		t.Fatalf("got %v, want ErrBombSuspected", err)
	}
}

func TestCheckExpansionRatio_GenerousRatioAccepts(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"word/document.xml": strings.Repeat("a", 4*1024*1024),
	})
	if err := CheckExpansionRatio(buf, 1_000_000, 500*1024*1024); err != nil {
		t.Fatalf("unexpected rejection at generous ratio: %v", err)
	}
}

func TestCheckExpansionRatio_RejectsAbsoluteCap(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"word/document.xml": strings.Repeat("a", 64*1024),
	})
	err := CheckExpansionRatio(buf, 1_000_000, 1024)
	if !errors.Is(err, ErrBombSuspected) {
		t.Fatalf("got %v, want ErrBombSuspected", err)
	}
}

func TestCheckExpansionRatio_CorruptArchive(t *testing.T) {
	buf := buildZip(t, map[string]string{"word/document.xml": "<w:document/>"})
	// Valid local header, truncated central directory.
	corrupt := buf[:len(buf)-20]
	err := CheckExpansionRatio(corrupt, 100, 500*1024*1024)
	if !errors.Is(err, ErrCorruptArchive) {
		t.Fatalf("got %v, want ErrCorruptArchive", err)
	}
}

func TestCheckExpansionRatio_DirectoriesIgnored(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"word/":             "",
		"word/document.xml": "<w:document/>",
	})
	if err := CheckExpansionRatio(buf, 100, 500*1024*1024); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}
