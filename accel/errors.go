package accel

import "errors"

// Error taxonomy. Callers should use errors.Is against these sentinels
// rather than matching message text; the message text is for humans.
var (
	// ErrOutOfBounds is returned by any Extractor read that would step
	// outside the backing blob.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrTruncated covers a bounds check failing while reading a header,
	// atom list, augmentation, abbreviation-table region, or entry.
	ErrTruncated = errors.New("truncated section")

	// ErrMalformedAbbrev covers an abbreviation table that doesn't
	// terminate before entries_base, or a duplicate abbreviation code.
	ErrMalformedAbbrev = errors.New("malformed abbreviation table")

	// ErrInvalidAbbrev is returned when an entry references a code
	// absent from the abbreviation set.
	ErrInvalidAbbrev = errors.New("invalid abbreviation code")

	// ErrFormExtract is returned when the form-value decoder can't make
	// sense of the bytes at the cursor for a declared form.
	ErrFormExtract = errors.New("form value extraction failed")

	// ErrUnsupportedHashFunction is returned by EqualRange when the
	// Apple header declares a hash function other than DJB; every real
	// producer uses DJB, but the header itself is still well-formed.
	ErrUnsupportedHashFunction = errors.New("unsupported apple hash function")
)
