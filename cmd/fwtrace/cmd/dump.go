/*
Copyright © 2024 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	colorHeader = colors.Header().SprintFunc()
	colorAddr   = colors.Address().SprintfFunc()
	colorCount  = colors.Count().SprintFunc()
	colorFaint  = colors.Faint().SprintFunc()
)

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().BoolP("regs", "r", false, "Show register min/max/last per instruction")
	dumpCmd.Flags().BoolP("mem", "m", false, "Show memory write summaries")
	dumpCmd.Flags().BoolP("edges", "e", false, "Show recorded edges")
	dumpCmd.Flags().BoolP("full", "f", false, "Also dump the full trace next to the summary")
	viper.BindPFlag("dump.regs", dumpCmd.Flags().Lookup("regs"))
	viper.BindPFlag("dump.mem", dumpCmd.Flags().Lookup("mem"))
	viper.BindPFlag("dump.edges", dumpCmd.Flags().Lookup("edges"))
	viper.BindPFlag("dump.full", dumpCmd.Flags().Lookup("full"))
}

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <SUMMARY>",
	Short: "Dump a summary trace",
	Example: heredoc.Doc(`
		# Dump the instructions of a summary trace
		❯ fwtrace dump traces/crashes/input_0-6f1c...-summary.bin
		# Include register ranges, memory writes and edges
		❯ fwtrace dump -r -m -e traces/crashes/input_0-6f1c...-summary.bin
		# Replay the full trace
		❯ fwtrace dump --full traces/crashes/input_0-6f1c...-summary.bin`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := trace.LoadSummary(args[0])
		if err != nil {
			return errors.Wrap(err, "failed to load summary")
		}
		log.WithFields(log.Fields{
			"instructions": len(sum.Instructions),
			"edges":        len(sum.Edges),
		}).Debug("Loaded summary")

		fmt.Print(summaryHeader(sum))

		showRegs := viper.GetBool("dump.regs")
		showMem := viper.GetBool("dump.mem")
		fmt.Println(colorHeader("[INSTRUCTIONS]"))
		for _, in := range sum.Instructions {
			fmt.Println(instructionLine(&in))
			if showRegs {
				for _, line := range registerRanges(&in) {
					fmt.Printf("        %s\n", colorFaint(line))
				}
			}
			if showMem && in.Memory != nil {
				fmt.Printf("        %s\n", colorFaint(memoryLine(in.Memory)))
			}
		}

		if viper.GetBool("dump.edges") {
			fmt.Println()
			fmt.Println(colorHeader("[EDGES]"))
			for _, e := range sum.Edges {
				// edges count re-traversals
				fmt.Printf("%s -> %s %-11s x%s\n",
					colorAddr("%#08x", e.From),
					colorAddr("%#08x", e.To),
					e.Kind,
					colorCount(humanize.Comma(int64(e.Count+1))),
				)
			}
		}

		if viper.GetBool("dump.full") {
			ft, err := trace.LoadFullTrace(trace.FullTracePath(args[0]))
			if err != nil {
				return errors.Wrap(err, "failed to load full trace")
			}
			fmt.Println()
			fmt.Printf("%s %s steps\n", colorHeader("[FULL TRACE]"), humanize.Comma(int64(len(ft.Steps))))
			for i, st := range ft.Steps {
				mnemonic := ""
				if in, ok := sum.Instruction(st.Address); ok {
					mnemonic = in.Mnemonic
				}
				fmt.Printf("%8d %s %s\n", i, colorAddr("%#08x", st.Address), mnemonic)
				if Verbose {
					fmt.Printf("         %s\n", colorFaint(st.Registers.String()))
				}
			}
		}

		return nil
	},
}

func summaryHeader(sum *trace.Summary) string {
	var sb strings.Builder
	status := colors.OK().Sprint(sum.StopReason)
	if sum.Crash {
		status = colors.Crash().Sprint(sum.StopReason)
	}
	fmt.Fprintf(&sb, "%s %s (run %d)\n", colorHeader("[RUN]"), sum.Label, sum.RunID)
	fmt.Fprintf(&sb, "  stop reason:  %s\n", status)
	if sum.Bugs != 0 {
		fmt.Fprintf(&sb, "  bugs:         %s\n", colors.Crash().Sprint(sum.Bugs))
	}
	fmt.Fprintf(&sb, "  image base:   %s\n", colorAddr("%#08x", sum.ImageBase))
	fmt.Fprintf(&sb, "  first/last:   %s / %s\n", colorAddr("%#08x", sum.FirstAddress), colorAddr("%#08x", sum.LastAddress))
	fmt.Fprintf(&sb, "  steps:        %s\n", humanize.Comma(int64(sum.Steps)))
	fmt.Fprintf(&sb, "  input:        %s (%s consumed)\n",
		humanize.Bytes(sum.Input.Length), humanize.Bytes(sum.Input.Consumed))
	fmt.Fprintf(&sb, "  instructions: %s unique, %s edges\n\n",
		humanize.Comma(int64(len(sum.Instructions))),
		humanize.Comma(int64(len(sum.Edges))))
	return sb.String()
}

func instructionLine(in *trace.SummaryInstruction) string {
	return fmt.Sprintf("%s %8s  %s", colorAddr("%#08x", in.Address), colorCount(humanize.Comma(int64(in.Count))), in.Mnemonic)
}

func registerRanges(in *trace.SummaryInstruction) []string {
	names := make([]string, 0, len(in.Last))
	for name := range in.Last {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, _ := trace.RegisterByName(names[i])
		rj, _ := trace.RegisterByName(names[j])
		return ri < rj
	})
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%5s: min=%#08x max=%#08x last=%#08x", name, in.Min[name], in.Max[name], in.Last[name]))
	}
	return lines
}

func memoryLine(m *trace.MemoryAccessSummary) string {
	return fmt.Sprintf("mem: last=%#08x/%d <- %#x  addr=[%#08x, %#08x] value=[%#x, %#x]",
		m.Last.Address, m.Last.Size, m.Last.Value,
		m.Min.Address, m.Max.Address,
		m.Min.Value, m.Max.Value,
	)
}
