package util

import (
	"errors"
	"strings"
)

const maxFileNameLen = 255

// SanitizeFileName normalizes an uploaded report file name. Path separators
// become underscores; traversal patterns, control characters, and empty names
// are rejected outright.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", errors.New("invalid file name")
		}
	}
	if s == "" {
		return "", errors.New("invalid file name")
	}
	if len(s) > maxFileNameLen {
		s = s[len(s)-maxFileNameLen:]
	}
	return s, nil
}
