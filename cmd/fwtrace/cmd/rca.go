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
	"context"
	"fmt"
	"time"
	"os"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/internal/config"
	"github.com/blacktop/fwtrace/pkg/rca"
	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(rcaCmd)

	rcaCmd.Flags().BoolP("regs", "r", false, "Also rank register value predicates")
	rcaCmd.Flags().Float64("min-score", 0, "Drop candidates scoring below this")
	rcaCmd.Flags().IntP("limit", "n", 25, "Show the best N candidates (0 for all)")
	viper.BindPFlag("rca.regs", rcaCmd.Flags().Lookup("regs"))
	viper.BindPFlag("rca.min-score", rcaCmd.Flags().Lookup("min-score"))
	viper.BindPFlag("rca.limit", rcaCmd.Flags().Lookup("limit"))
}

// rcaCmd represents the rca command
var rcaCmd = &cobra.Command{
	Use:   "rca <TRACES_DIR>",
	Short: "Rank the instructions and edges that separate crashing from non-crashing runs",
	Example: heredoc.Doc(`
		# Rank candidates over a traces directory written by run-corpus
		❯ fwtrace rca traces/
		# Include register predicates and keep only strong separators
		❯ fwtrace rca -r --min-score 0.8 traces/`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		s := spinner.New(spinner.CharSets[38], 100*time.Millisecond)
		s.Prefix = colors.Hook().Sprint("   • Ranking traces... ")
		if !Verbose {
			s.Start()
		}
		rep, err := rca.AnalyzeDir(context.Background(), args[0], conf.Emu.Workers, rca.Options{
			Registers: viper.GetBool("rca.regs"),
			MinScore:  viper.GetFloat64("rca.min-score"),
			Limit:     viper.GetInt("rca.limit"),
		})
		s.Stop()
		if err != nil {
			return errors.Wrapf(err, "failed to analyze %s", args[0])
		}

		fmt.Printf("%s %s crashing, %s non-crashing runs\n\n",
			colorHeader("[RCA]"),
			colors.Crash().Sprint(humanize.Comma(int64(rep.Crashes))),
			colors.OK().Sprint(humanize.Comma(int64(rep.NonCrashes))),
		)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tSCORE\tKIND\tCRASH\tOK\tCANDIDATE")
		for i, c := range rep.Candidates {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				i+1,
				colors.Score(c.Score).Sprintf("%+.3f", c.Score),
				c.Kind,
				humanize.Comma(int64(c.CrashHits)),
				humanize.Comma(int64(c.NonCrashHits)),
				c.String(),
			)
		}
		return w.Flush()
	},
}
