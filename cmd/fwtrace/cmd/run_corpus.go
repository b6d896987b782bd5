//go:build unicorn

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
	"sort"
	"sync"
	"sync/atomic"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/internal/config"
	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(runCorpusCmd)
	addEmuFlags(runCorpusCmd)
	runCorpusCmd.Flags().Bool("no-progress", false, "Do not show a progress bar")
	runCorpusCmd.Flags().Bool("keep-dups", false, "Trace inputs with identical content more than once")
	runCorpusCmd.Flags().String("profile", "", "Write a cpu or mem profile to the trace output directory")
	runCorpusCmd.Flags().MarkHidden("profile")
}

// runCorpusCmd represents the run-corpus command
var runCorpusCmd = &cobra.Command{
	Use:     "run-corpus <CORPUS_DIR>",
	Aliases: []string{"rc"},
	Short:   "Trace every input of a fuzzing corpus",
	Example: heredoc.Doc(`
		# Trace <corpus>/crashes and <corpus>/non_crashes with 8 emulators
		❯ fwtrace run-corpus -f firmware.yml -o traces/ -j 8 corpus/
		# then rank the root cause candidates
		❯ fwtrace rca traces/`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if conf.Trace.Output == "" {
			return errors.New("no trace output directory given (use --output or trace.output)")
		}
		fw, err := loadFirmware(conf)
		if err != nil {
			return err
		}
		inputs, err := collectInputs(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to read corpus %s", args[0])
		}
		if keep, _ := cmd.Flags().GetBool("keep-dups"); !keep {
			var dups int
			if inputs, dups, err = dedupInputs(inputs); err != nil {
				return errors.Wrap(err, "failed to read inputs")
			}
			if dups > 0 {
				log.Debugf("Skipping %d duplicate inputs", dups)
			}
		}
		if len(inputs) == 0 {
			log.Warnf("No inputs found in %s", args[0])
			return nil
		}

		switch prof, _ := cmd.Flags().GetString("profile"); prof {
		case "":
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(conf.Trace.Output), profile.Quiet).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath(conf.Trace.Output), profile.Quiet).Stop()
		default:
			return errors.Errorf("unknown profile %q (use cpu or mem)", prof)
		}

		workers := min(conf.Emu.Workers, len(inputs))
		log.WithFields(log.Fields{
			"inputs":  humanize.Comma(int64(len(inputs))),
			"workers": workers,
		}).Info("Tracing corpus")

		var p *mpb.Progress
		var bar *mpb.Bar
		if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress && !Verbose {
			p = mpb.New(mpb.WithWidth(80))
			bar = p.Add(int64(len(inputs)),
				mpb.NewBarFiller(mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|")),
				mpb.PrependDecorators(
					decor.Name("     ", decor.WC{W: len("     ") + 1, C: decor.DidentRight}),
					decor.OnComplete(
						decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "✅ ",
					),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.Name(" ] "),
				),
			)
		}

		var (
			mu      sync.Mutex
			reasons = make(map[trace.StopReason]int)
			failed  atomic.Int64
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		paths := make(chan string)
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(workers + 1)
		g.Go(func() error {
			defer close(paths)
			for _, in := range inputs {
				select {
				case paths <- in:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		for range workers {
			g.Go(func() error {
				w, err := newWorker(fw, conf)
				if err != nil {
					return err
				}
				defer w.Close()

				for path := range paths {
					reason, err := w.trace(path)
					if err != nil {
						// the run was dropped, keep going with the rest of the corpus
						failed.Add(1)
						log.WithError(err).Warnf("failed to trace %s", path)
					} else {
						mu.Lock()
						reasons[reason]++
						mu.Unlock()
					}
					if bar != nil {
						bar.Increment()
					}
				}
				return nil
			})
		}
		err = ctrlc.Default.Run(ctx, g.Wait)
		if errors.As(err, &ctrlc.ErrorCtrlC{}) {
			log.Warn("Exiting...")
			cancel()
			// workers finish their current input
			g.Wait()
		}
		if p != nil {
			if err != nil {
				bar.Abort(false)
			}
			p.Wait()
		}
		if err != nil {
			return err
		}

		printReasons(reasons, int(failed.Load()))
		return nil
	},
}

func printReasons(reasons map[trace.StopReason]int, failed int) {
	keys := make([]trace.StopReason, 0, len(reasons))
	for r := range reasons {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return reasons[keys[i]] > reasons[keys[j]] })

	fmt.Println(colorHeader("[STOP REASONS]"))
	for _, r := range keys {
		name := colors.OK().Sprintf("%-22s", r)
		if r.IsCrash() {
			name = colors.Crash().Sprintf("%-22s", r)
		}
		fmt.Printf("  %s %s\n", name, colorCount(humanize.Comma(int64(reasons[r]))))
	}
	if failed > 0 {
		fmt.Printf("  %-22s %s\n", "failed", colorCount(humanize.Comma(int64(failed))))
	}
}
