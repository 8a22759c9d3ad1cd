package validators

import (
	"path/filepath"
	"strings"
)

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeFileName keeps only the base name of a client supplied file name.
func SanitizeFileName(input string, maxLen int) string {
	name := strings.ReplaceAll(strings.TrimSpace(input), "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	return SanitizeString(name, maxLen)
}
