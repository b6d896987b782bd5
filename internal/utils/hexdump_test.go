package utils

import (
	"testing"

	"github.com/fatih/color"
)

func TestHexDump(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = true

	data := []byte("\x00\x10\x00\x20\xe1\x01\x00\x08hello, world!\n\x00\x00\xff")
	want := "20000000  00 10 00 20 e1 01 00 08  68 65 6c 6c 6f 2c 20 77  |... ....hello, w|\n" +
		"20000010  6f 72 6c 64 21 0a 00 00  ff                       |orld!....|\n"

	if got := HexDump(data, 0x20000000); got != want {
		t.Fatalf("HexDump:\ngot:\n%s\nwant:\n%s", got, want)
	}
	if got := HexDump(nil, 0); got != "" {
		t.Fatalf("HexDump(nil) = %q, want empty", got)
	}
}
