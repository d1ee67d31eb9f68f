package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeName makes s safe to use as a download filename. Control
// characters are dropped and anything outside a small allowed set becomes
// an underscore.
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
	case '-', '_', '.':
		return true
	default:
		return false
	}
}

// DownloadName is the attachment filename for a rendered export: the
// renderer's own name when it is usable, else video_<token>.mp4.
func DownloadName(rendered, token string) string {
	name := SanitizeName(filepath.Base(rendered), 128)
	if name == "" || name == "." || strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), ".mp4") {
		return "video_" + SanitizeName(token, 64) + ".mp4"
	}
	return name
}

// PrepareWorkDir checks that dir is a clean path without traversal and
// creates it if needed.
func PrepareWorkDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("work dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("work dir cannot contain path traversal")
		}
	}

	if filepath.Clean(dir) != dir {
		return fmt.Errorf("work dir must be a clean path")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create work dir: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("invalid work dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("work dir is not a directory")
	}
	return nil
}
