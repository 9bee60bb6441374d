package util

import "strings"

func StringPtr(v string) *string { return &v }

func DerefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SanitizeFileName replaces characters that are unsafe in file and object
// names and caps the length.
func SanitizeFileName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "\"", "_")
	out := repl.Replace(strings.TrimSpace(input))
	if out == "" || out == "." || out == ".." {
		out = "export"
	}
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
