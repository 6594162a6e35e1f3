// Package artifacts embeds the default settings file and the fixed build
// templates written into every job workspace.
package artifacts

import "embed"

// Global artifacts

//go:embed global/settings.yaml
var GlobalSettings []byte

// Build templates, one Makefile per job kind plus tool scripts.
//
//go:embed templates/*.tmpl
var Templates embed.FS
