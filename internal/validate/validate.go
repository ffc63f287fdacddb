// Package validate provides input validation helpers shared by the API
// handlers and the domain engines: free-text constraints, coordinate ranges
// and GPS error margins.
package validate

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrEmpty           = errors.New("value is empty")
	ErrTooShort        = errors.New("value is too short")
	ErrTooLong         = errors.New("value is too long")
	ErrLatitudeRange   = errors.New("latitude must be between -90 and 90")
	ErrLongitudeRange  = errors.New("longitude must be between -180 and 180")
	ErrNegativeGPSErr  = errors.New("gps error margin must be non-negative")
)

// MinRejectionReasonLen is the minimum character count for an invitation
// rejection reason.
const MinRejectionReasonLen = 10

// MaxNotesLen bounds free-text note fields.
const MaxNotesLen = 2000

// Text validates a free-text value against min/max rune counts after
// trimming surrounding whitespace. Returns the trimmed value.
func Text(s string, minLen, maxLen int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if minLen > 0 {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Rune count, not byte count: reasons are written in the field teams'
	// own language.
	length := utf8.RuneCountInString(s)
	if minLen > 0 && length < minLen {
		return "", ErrTooShort
	}
	if maxLen > 0 && length > maxLen {
		return "", ErrTooLong
	}
	return s, nil
}

// RejectionReason validates an invitation rejection reason.
func RejectionReason(s string) (string, error) {
	return Text(s, MinRejectionReasonLen, MaxNotesLen)
}

// Coordinates validates a latitude/longitude pair in decimal degrees.
func Coordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return ErrLatitudeRange
	}
	if lng < -180 || lng > 180 {
		return ErrLongitudeRange
	}
	return nil
}

// GPSError validates a GPS error margin in meters.
func GPSError(m float64) error {
	if m < 0 {
		return ErrNegativeGPSErr
	}
	return nil
}
