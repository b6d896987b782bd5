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

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/internal/config"
	"github.com/blacktop/fwtrace/pkg/rca"
	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(evalCrashCmd)

	evalCrashCmd.Flags().BoolP("yaml", "y", false, "Output as yaml")
	evalCrashCmd.Flags().BoolP("shortest", "s", false, "Keep the shortest reproducer input of every crash")
	viper.BindPFlag("eval-crash.yaml", evalCrashCmd.Flags().Lookup("yaml"))
	viper.BindPFlag("eval-crash.shortest", evalCrashCmd.Flags().Lookup("shortest"))
}

// evalCrashCmd represents the eval-crash command
var evalCrashCmd = &cobra.Command{
	Use:   "eval-crash <TRACES_DIR>",
	Short: "List the first occurrence or shortest reproducer of every distinct crash",
	Example: heredoc.Doc(`
		# When was every crash first found?
		❯ fwtrace eval-crash traces/
		# Which input reproduces every crash with the fewest bytes?
		❯ fwtrace eval-crash --shortest traces/
		❯ fwtrace eval-crash --yaml traces/ > crashes.yml`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		s := spinner.New(spinner.CharSets[38], 100*time.Millisecond)
		s.Prefix = colors.Hook().Sprint("   • Loading crashing traces... ")
		if !Verbose {
			s.Start()
		}
		order := rca.OrderFirst
		if viper.GetBool("eval-crash.shortest") {
			order = rca.OrderShortest
		}
		occs, err := rca.EvalCrashes(context.Background(), args[0], conf.Emu.Workers, order)
		s.Stop()
		if err != nil {
			return errors.Wrapf(err, "failed to evaluate crashes in %s", args[0])
		}

		if viper.GetBool("eval-crash.yaml") {
			out, err := yaml.Marshal(occs)
			if err != nil {
				return errors.Wrap(err, "failed to marshal crashes")
			}
			fmt.Print(string(out))
			return nil
		}

		if len(occs) == 0 {
			fmt.Println(colors.OK().Sprint("No crashes found"))
			return nil
		}
		for _, o := range occs {
			fmt.Printf("%s %s %-24s %s  %s (%s, %s input, x%d)\n",
				colorFaint(o.Time.Format("2006-01-02 15:04:05")),
				colorAddr("%#08x", o.LastAddress),
				colors.Crash().Sprint(o.Reason),
				o.Mnemonic,
				o.File,
				humanize.Time(o.Time),
				humanize.Bytes(o.InputLength),
				o.Count,
			)
		}
		return nil
	},
}
