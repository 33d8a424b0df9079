package schema

import (
	"strings"
	"unicode"
)

const maxTabKeyLen = 96

// NormalizeURL trims surrounding whitespace, including the trailing newline
// editors add to files.
func NormalizeURL(url string) string {
	return strings.TrimSpace(url)
}

// ValidateTabKey ensures a tab name is usable as a single directory name.
func ValidateTabKey(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidTabKey
	}
	if strings.HasPrefix(name, ".") {
		return ErrInvalidTabKey
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidTabKey
	}
	return nil
}

// TabKeyForURL derives a directory-safe tab name from a url.
// Allowed characters: letters, digits, '.', '_', '-'; everything else becomes '_'.
func TabKeyForURL(url string) string {
	trimmed := NormalizeURL(url)
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	var b strings.Builder
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	key := strings.Trim(b.String(), "_.")
	if len(key) > maxTabKeyLen {
		key = strings.TrimRight(key[:maxTabKeyLen], "_.")
	}
	if key == "" {
		return "tab"
	}
	return key
}
