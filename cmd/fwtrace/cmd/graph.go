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
	"os"
	"strconv"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/fwtrace/pkg/cfg"
	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringP("output", "o", "", "Write the DOT graph to this file")
	graphCmd.Flags().String("path", "", "Print the shortest observed path to this address")
	graphCmd.Flags().String("from", "", "Print the instructions reachable from this address")
	viper.BindPFlag("graph.output", graphCmd.Flags().Lookup("output"))
	viper.BindPFlag("graph.path", graphCmd.Flags().Lookup("path"))
	viper.BindPFlag("graph.from", graphCmd.Flags().Lookup("from"))
}

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <SUMMARY>",
	Short: "Build the control-flow graph observed by a run",
	Example: heredoc.Doc(`
		# Render the observed CFG with graphviz
		❯ fwtrace graph -o run.dot traces/crashes/input_0-6f1c...-summary.bin
		❯ dot -Tsvg run.dot -o run.svg
		# How did the run reach the crash site?
		❯ fwtrace graph --path 0x08000412 traces/crashes/input_0-6f1c...-summary.bin`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := trace.LoadSummary(args[0])
		if err != nil {
			return errors.Wrap(err, "failed to load summary")
		}
		g, err := cfg.Build(sum)
		if err != nil {
			return errors.Wrap(err, "failed to build graph")
		}

		if to := viper.GetString("graph.path"); to != "" {
			addr, err := parseAddress(to)
			if err != nil {
				return err
			}
			path, err := g.PathTo(addr)
			if err != nil {
				return err
			}
			for _, a := range path {
				printGraphVertex(sum, a)
			}
			return nil
		}

		if from := viper.GetString("graph.from"); from != "" {
			addr, err := parseAddress(from)
			if err != nil {
				return err
			}
			reach, err := g.Reachable(addr)
			if err != nil {
				return errors.Wrapf(err, "failed to walk graph from %#08x", addr)
			}
			for _, a := range reach {
				printGraphVertex(sum, a)
			}
			return nil
		}

		out := os.Stdout
		if fname := viper.GetString("graph.output"); fname != "" {
			f, err := os.Create(fname)
			if err != nil {
				return errors.Wrap(err, "failed to create DOT file")
			}
			defer f.Close()
			out = f
			log.Infof("Writing DOT graph to %s", fname)
		}
		return g.DOT(out)
	},
}

func printGraphVertex(sum *trace.Summary, addr uint32) {
	if in, ok := sum.Instruction(addr); ok {
		fmt.Println(instructionLine(in))
		return
	}
	fmt.Println(colorAddr("%#08x", addr))
}

func parseAddress(s string) (uint32, error) {
	addr, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %q", s)
	}
	return uint32(addr), nil
}
