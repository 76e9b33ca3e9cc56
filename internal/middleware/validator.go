package middleware

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation and sanitization utilities

var (
	roomIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	fileIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
)

// ValidateRoomID validates room ID format
func ValidateRoomID(room string) error {
	if room == "" {
		return fmt.Errorf("room ID cannot be empty")
	}
	if !roomIDPattern.MatchString(room) {
		return fmt.Errorf("invalid room ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateFileID validates a file ID (lowercase UUID)
func ValidateFileID(id string) error {
	if !fileIDPattern.MatchString(id) {
		return fmt.Errorf("invalid file ID: %q", id)
	}
	return nil
}

// ValidateFileIDs validates every ID and caps the list length.
func ValidateFileIDs(ids []string) error {
	if len(ids) > 500 {
		return fmt.Errorf("too many file IDs: %d (max 500)", len(ids))
	}
	for _, id := range ids {
		if err := ValidateFileID(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateThreshold accepts nil (use default) or a value in [0,1].
func ValidateThreshold(t *float64) error {
	if t == nil {
		return nil
	}
	if *t < 0 || *t > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %v", *t)
	}
	return nil
}

const maxFileNameBytes = 255

// SanitizeFileName strips directories and control characters from a
// client-supplied name. The result is never empty.
func SanitizeFileName(name string) string {
	name = SanitizeString(strings.ReplaceAll(name, `\`, "/"))
	name = path.Base(name)
	name = strings.Trim(name, ". ")
	if name == "" || name == "/" {
		return "file"
	}
	// keep the tail, where the extension is, cut on a rune boundary
	if len(name) > maxFileNameBytes {
		i := len(name) - maxFileNameBytes
		for i < len(name) && !utf8.RuneStart(name[i]) {
			i++
		}
		name = name[i:]
	}
	return name
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage normalizes a 1-based page number
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
