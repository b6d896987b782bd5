package colors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestInit(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	on, off := true, false
	tests := []struct {
		name  string
		start bool
		force *bool
		want  bool
	}{
		{"force on", true, &on, true},
		{"force off", false, &off, false},
		{"nil keeps enabled", false, nil, true},
		{"nil keeps disabled", true, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			color.NoColor = tt.start
			Init(tt.force)
			if Enabled() != tt.want {
				t.Errorf("Enabled() = %v, want %v", Enabled(), tt.want)
			}
		})
	}
}

func TestPaletteOutput(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	palette := map[string]func() *color.Color{
		"Mnemonic":  Mnemonic,
		"Register":  Register,
		"Immediate": Immediate,
		"Address":   Address,
		"Bytes":     Bytes,
		"Hook":      Hook,
		"Details":   Details,
		"Interrupt": Interrupt,
		"Changed":   Changed,
		"Zeros":     Zeros,
		"Offset":    Offset,
		"Header":    Header,
		"Crash":     Crash,
		"OK":        OK,
		"Count":     Count,
		"Faint":     Faint,
	}
	for name, fn := range palette {
		t.Run(name, func(t *testing.T) {
			color.NoColor = false
			if s := fn().Sprint("x"); !strings.Contains(s, "\x1b[") {
				t.Errorf("expected ANSI codes, got %q", s)
			}
			color.NoColor = true
			if s := fn().Sprint("x"); s != "x" {
				t.Errorf("expected plain output, got %q", s)
			}
		})
	}
}

func TestScore(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = false

	if Score(1).Sprint("s") != Crash().Sprint("s") {
		t.Error("a perfect score should use the crash color")
	}
	if Score(-0.5).Sprint("s") != Faint().Sprint("s") {
		t.Error("a negative score should be faint")
	}
	if Score(0.6).Sprint("s") == Score(0.2).Sprint("s") {
		t.Error("strong and weak scores should differ")
	}
}
