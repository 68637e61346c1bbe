package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// Dimension bounds shared by requests and overrides.
const (
	MinDimension = 50
	MaxDimension = 4096
)

// maxIDLength bounds saved-config ids accepted from callers.
const maxIDLength = 64

// ValidateID validates a saved-config id for safety and correctness.
// Ids are opaque to callers but are also used as durable-store path
// components, so anything outside [0-9A-Za-z_-] is rejected.
func ValidateID(id string) error {
	if id == "" {
		return New(ErrCodeValidation, "chart id cannot be empty")
	}

	if len(id) > maxIDLength {
		return New(ErrCodeValidation, "chart id too long (max %d characters)", maxIDLength)
	}

	for _, r := range id {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return New(ErrCodeValidation, "chart id contains invalid characters")
		}
	}

	return nil
}

// ValidateStoreKey validates an artifact key used as a file name in the
// durable tier. It ensures the key is a simple basename without path components.
func ValidateStoreKey(key string) error {
	if key == "" {
		return New(ErrCodeValidation, "store key cannot be empty")
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return New(ErrCodeValidation, "store key contains invalid control characters")
		}
	}

	// Must be a simple filename, not a path
	if strings.ContainsAny(key, "/\\") {
		return New(ErrCodeValidation, "store key cannot contain path separators")
	}

	if strings.Contains(key, "..") || strings.HasPrefix(key, ".") {
		return New(ErrCodeValidation, "store key cannot be hidden or contain '..'")
	}

	return nil
}

// ValidateDimension checks that a width or height lies in [MinDimension, MaxDimension].
func ValidateDimension(field string, v int) error {
	if v < MinDimension || v > MaxDimension {
		return New(ErrCodeValidation, "%s must be between %d and %d, got %d", field, MinDimension, MaxDimension, v)
	}
	return nil
}

// cssColorRegex accepts hex colors, functional notations and named colors.
// The whole value must match: colors are interpolated into page CSS.
var cssColorRegex = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|(rgba?|hsla?)\([0-9a-zA-Z.,%/\s+-]*\)|[a-zA-Z]+)$`)

// ValidateCSSColor validates a CSS color value.
func ValidateCSSColor(field, color string) error {
	if !cssColorRegex.MatchString(color) {
		return New(ErrCodeValidation, "%s: must be a valid CSS color, got %q", field, color)
	}
	return nil
}
