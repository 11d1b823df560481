package accel

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// decodeAugmentation renders a unit's augmentation bytes for display.
// Real producers (LLVM's "LLVM0700" tag) emit ASCII, but the format only
// guarantees bytes padded to a 4-byte boundary, so a non-UTF-8 blob is
// retried as UTF-16LE before falling back to a hex dump.
func decodeAugmentation(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return strings.TrimRight(string(b), "\x00")
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err == nil && utf8.Valid(decoded) {
		return strings.TrimRight(string(decoded), "\x00")
	}
	return fmt.Sprintf("% x", b)
}
