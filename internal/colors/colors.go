// Package colors holds the terminal palette used for traces, disassembly and
// reports.
//
// Colors are disabled when stdout is not a terminal. Init overrides that from
// the --color flag.
package colors

import "github.com/fatih/color"

// Init overrides the auto-detected color setting, nil keeps it
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

// Disassembly
func Mnemonic() *color.Color  { return color.New(color.Bold) }
func Register() *color.Color  { return color.New(color.Bold, color.FgHiBlue) }
func Immediate() *color.Color { return color.New(color.Bold, color.FgMagenta) }
func Address() *color.Color   { return color.New(color.Bold, color.FgMagenta) }
func Bytes() *color.Color     { return color.New(color.Faint, color.FgHiWhite) }

// Emulator events
func Hook() *color.Color      { return color.New(color.Faint, color.FgHiBlue) }
func Details() *color.Color   { return color.New(color.Italic, color.Faint, color.FgWhite) }
func Interrupt() *color.Color { return color.New(color.Italic, color.Bold, color.FgHiYellow) }
func Changed() *color.Color   { return color.New(color.FgHiYellow) }

// Hexdumps
func Zeros() *color.Color  { return color.New(color.Faint, color.FgHiBlue) }
func Offset() *color.Color { return color.New(color.Italic, color.Faint) }

// Reports
func Header() *color.Color { return color.New(color.Bold, color.FgHiCyan) }
func Crash() *color.Color  { return color.New(color.Bold, color.FgHiRed) }
func OK() *color.Color     { return color.New(color.Bold, color.FgHiGreen) }
func Count() *color.Color  { return color.New(color.FgHiYellow) }
func Faint() *color.Color  { return color.New(color.Faint) }

// Score colors a root-cause score, strong separators stand out
func Score(s float64) *color.Color {
	switch {
	case s >= 0.9:
		return Crash()
	case s >= 0.5:
		return color.New(color.Bold, color.FgHiYellow)
	case s > 0:
		return color.New(color.FgYellow)
	}
	return Faint()
}
