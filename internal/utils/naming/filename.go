// Package naming derives filesystem-safe names for export artifacts.
package naming

import "strings"

// Sanitize replaces every character outside [A-Za-z0-9] with an underscore
// so project names survive any filesystem and shell quoting.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// ExportFilename builds the output filename for a project export. Empty
// names fall back to a generic stem. The extension is passed without a dot.
func ExportFilename(projectName, ext string) string {
	stem := Sanitize(projectName)
	if strings.Trim(stem, "_") == "" {
		stem = "export"
	}
	return stem + "." + ext
}
