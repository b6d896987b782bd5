package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blacktop/fwtrace/internal/colors"
)

var colorFaint = colors.Zeros().SprintFunc()
var colorOffset = colors.Offset().SprintFunc()

var zerosMatch = regexp.MustCompile(`\s(00\s)+|\.`)

func colorZeros(line string) string {
	return zerosMatch.ReplaceAllStringFunc(line, func(s string) string {
		return colorFaint(s)
	})
}

func toChar(b byte) byte {
	if b < 32 || b > 126 {
		return '.'
	}
	return b
}

// HexDump returns a `hexdump -C` style dump of data with offsets starting at
// the 32-bit address vaddr
func HexDump(data []byte, vaddr uint32) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		line := data[off:min(off+16, len(data))]

		var hexPart strings.Builder
		for i := range 16 {
			if i == 8 {
				hexPart.WriteByte(' ')
			}
			if i < len(line) {
				fmt.Fprintf(&hexPart, "%02x ", line[i])
			} else {
				hexPart.WriteString("   ")
			}
		}
		chars := make([]byte, len(line))
		for i, b := range line {
			chars[i] = toChar(b)
		}

		sb.WriteString(colorOffset(fmt.Sprintf("%08x", vaddr+uint32(off))))
		sb.WriteString("  ")
		sb.WriteString(colorZeros(hexPart.String() + " |" + string(chars) + "|"))
		sb.WriteByte('\n')
	}
	return sb.String()
}
