package merge

import (
	"path"
	"strings"

	"github.com/ShayCichocki/colony/pkg/models"
)

// BarrelFiles are basenames whose content is a list of independent lines
// (re-exports, package markers), so variants from several workers can be
// combined by line union.
var BarrelFiles = []string{
	"index.ts",
	"index.tsx",
	"index.js",
	"index.jsx",
	"__init__.py",
	"mod.rs",
	"requirements.txt",
	".gitignore",
}

// BarrelWildcardPatterns are glob patterns for line-oriented files.
var BarrelWildcardPatterns = []string{
	"*.d.ts",
	".env*",
}

// IsBarrelFile reports whether p is a line-oriented barrel file.
func IsBarrelFile(p string) bool {
	base := path.Base(strings.TrimSpace(p))
	for _, b := range BarrelFiles {
		if base == b {
			return true
		}
	}
	for _, pattern := range BarrelWildcardPatterns {
		if matched, _ := path.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// IsMergeable reports whether colliding variants of target may be unioned:
// barrel files and the domain's shared targets.
func IsMergeable(target string, shared []string) bool {
	if IsBarrelFile(target) {
		return true
	}
	for _, s := range shared {
		if models.CleanPath(s) == models.CleanPath(target) {
			return true
		}
	}
	return false
}

// UnionLines combines variants line by line: the first variant is kept in
// full, then each later variant contributes lines not already present.
func UnionLines(variants []string) string {
	if len(variants) == 0 {
		return ""
	}
	seen := make(map[string]bool)
	var out []string
	trailingNewline := false
	for _, v := range variants {
		if strings.HasSuffix(v, "\n") {
			trailingNewline = true
		}
		for _, line := range strings.Split(strings.TrimRight(v, "\n"), "\n") {
			key := strings.TrimSpace(line)
			if key == "" {
				if len(out) > 0 && out[len(out)-1] != "" {
					out = append(out, "")
				}
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, line)
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	joined := strings.Join(out, "\n")
	if trailingNewline {
		joined += "\n"
	}
	return joined
}
