package utils

import (
	"path/filepath"
	"strings"
)

const maxSafeNameLength = 32

// SafeFileName reduces a file's base name to lowercase [a-z0-9_-], at most 32
// characters. The extension is dropped. An empty result becomes "file".
func SafeFileName(name string) string {
	base := BaseName(name)
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if b.Len() >= maxSafeNameLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// BaseName strips directories and the final extension from name.
func BaseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ReplaceExt returns name's base with ext (including the dot) appended.
func ReplaceExt(name, ext string) string {
	base := BaseName(name)
	if base == "" {
		base = "file"
	}
	return base + ext
}
