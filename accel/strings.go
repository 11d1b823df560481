package accel

import "fmt"

// StringSection is the string-table collaborator (.debug_str, or an Apple
// table's associated string section) supplied by the caller. The core
// never owns this memory; it only indexes into it.
type StringSection struct {
	data []byte
}

// NewStringSection wraps the raw bytes of a string section.
func NewStringSection(data []byte) *StringSection {
	return &StringSection{data: data}
}

// StringAt returns the NUL-terminated string starting at offset.
func (s *StringSection) StringAt(offset uint32) (string, error) {
	if s == nil || offset > uint32(len(s.data)) {
		return "", fmt.Errorf("%w: string offset %d", ErrOutOfBounds, offset)
	}
	rest := s.data[offset:]
	for i, c := range rest {
		if c == 0 {
			return string(rest[:i]), nil
		}
	}
	return "", fmt.Errorf("%w: unterminated string at offset %d", ErrOutOfBounds, offset)
}
