package sanitize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeKeyChars  = regexp.MustCompile(`[^a-zA-Z0-9._ -]`)
	repeatedUnderln = regexp.MustCompile(`_+`)
)

// SanitizeFilename strips directories, traversal sequences, and control characters
func SanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(filename)
	if filename == "." || filename == "/" || filename == ".." {
		return ""
	}
	filename = controlChars.ReplaceAllString(filename, "")
	return strings.TrimSpace(filename)
}

// KeySafeFilename returns a filename restricted to characters that are safe in an object key.
// Anything else becomes an underscore.
func KeySafeFilename(filename string) string {
	filename = SanitizeFilename(filename)
	filename = unsafeKeyChars.ReplaceAllString(filename, "_")
	filename = strings.ReplaceAll(filename, " ", "_")
	filename = repeatedUnderln.ReplaceAllString(filename, "_")
	return filename
}

// ContainsPathTraversal detects traversal attempts in user-supplied names
func ContainsPathTraversal(name string) bool {
	return strings.Contains(name, "..") || strings.ContainsRune(name, 0)
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeText trims whitespace and drops control characters except newlines and tabs
func NormalizeText(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
