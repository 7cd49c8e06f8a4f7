package export

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

// SanitizeName keeps a user supplied name safe for use as a file name.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// ValidateOutputDir checks that dir is a clean path to an existing
// directory. Malformed paths are validation errors, unusable ones IO errors.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return editerr.Validation("output directory is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return editerr.Validation("output directory cannot contain path traversal")
		}
	}

	if filepath.Clean(dir) != dir {
		return editerr.Validation("output directory must be a clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return editerr.IO("output directory does not exist: "+dir, err)
		}
		return editerr.IO("invalid output directory "+dir, err)
	}
	if !info.IsDir() {
		return editerr.IO("output path is not a directory: "+dir, nil)
	}

	return nil
}
