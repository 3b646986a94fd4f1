package errors

import (
	"strings"
	"unicode"
)

// maxTaskIDLength bounds task ids read from graph files and URLs.
const maxTaskIDLength = 256

// ValidateTaskID validates a task id from a graph file or an HTTP path.
//
// The rules are conservative:
//   - No empty ids
//   - No control characters or null bytes
//   - No whitespace at either end
//   - No slashes, so ids stay usable as URL path segments
//   - Maximum length of 256 characters
func ValidateTaskID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidTaskID, "task id cannot be empty")
	}

	if len(id) > maxTaskIDLength {
		return New(ErrCodeInvalidTaskID, "task id too long (max %d characters)", maxTaskIDLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidTaskID, "task id contains invalid control characters")
		}
	}

	if strings.TrimSpace(id) != id {
		return New(ErrCodeInvalidTaskID, "task id %q has surrounding whitespace", id)
	}

	if strings.ContainsAny(id, "/\\") {
		return New(ErrCodeInvalidTaskID, "task id %q cannot contain slashes", id)
	}

	return nil
}

// ValidateGraphFilename validates the name of a graph file.
// Only TOML files are accepted.
func ValidateGraphFilename(filename string) error {
	if filename == "" {
		return New(ErrCodeInvalidInput, "graph filename cannot be empty")
	}
	if !strings.HasSuffix(filename, ".toml") {
		return New(ErrCodeUnsupported, "graph file %q must have a .toml extension", filename)
	}
	return nil
}
