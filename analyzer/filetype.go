package analyzer

import "bytes"

// magicSignature maps a leading byte sequence to a file type label.
type magicSignature struct {
	magic    []byte
	fileType string
}

// Known magic numbers, checked in order against the first bytes of the
// buffer. ZIP needs a second pair after "PK" so it is handled separately.
var magicSignatures = []magicSignature{
	{[]byte{0x7F, 0x45, 0x4C, 0x46}, "ELF"},
	{[]byte{0x1F, 0x8B}, "GZIP"},
	{[]byte{0x4D, 0x5A}, "PE"},
}

var zipLocalHeaders = [][]byte{
	{0x03, 0x04},
	{0x05, 0x06},
	{0x07, 0x08},
}

// DetectFileType classifies a buffer by its magic number, falling back to
// prefix heuristics. Buffers shorter than four bytes cannot carry a full
// magic sequence and are reported as Unknown.
func DetectFileType(data []byte) string {
	if len(data) < 4 {
		return "Unknown"
	}

	if bytes.HasPrefix(data, []byte{0x50, 0x4B}) {
		for _, hdr := range zipLocalHeaders {
			if bytes.Equal(data[2:4], hdr) {
				return "ZIP"
			}
		}
	}

	for _, sig := range magicSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.fileType
		}
	}

	// Prefix heuristics for common firmware payload wrappers.
	switch {
	case bytes.HasPrefix(data, []byte("MZ")):
		return "DOS/Windows Executable"
	case bytes.HasPrefix(data, []byte("#!/")):
		return "Shell Script"
	case bytes.HasPrefix(data, []byte("PK")):
		return "Archive"
	}

	return "Binary/Unknown"
}

// isExecutableType reports whether a detected file type is itself an
// executable container, used by the hidden-executable cross-check.
func isExecutableType(fileType string) bool {
	switch fileType {
	case "ELF", "PE", "DOS/Windows Executable":
		return true
	}
	return false
}
