// SPDX-License-Identifier: MIT
package termstyle

import "github.com/liggitt/tabwriter"

// Colors are named for what they mean rather than how they render, so
// a palette change stays local to this package.
const (
	Reset   = "\x1b[0m"
	Healthy = "\x1b[32m"
	Warn    = "\x1b[33m"
	Error   = "\x1b[31m"
	Info    = "\x1b[34m"
)

// esc brackets ANSI runs so tabwriter does not count them toward
// column widths.
var esc = string([]byte{tabwriter.Escape})

// Colorize wraps value in the given color when enabled.
func Colorize(enabled bool, value, color string) string {
	if !enabled || value == "" || color == "" {
		return value
	}
	return esc + color + esc + value + esc + Reset + esc
}
