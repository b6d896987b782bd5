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
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/internal/config"
	"github.com/blacktop/fwtrace/pkg/emu"
	"github.com/blacktop/fwtrace/pkg/thumb"
	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(runCmd)
	addEmuFlags(runCmd)
	runCmd.Flags().Bool("dump-config", false, "Print the parsed firmware config and exit")
}

// addEmuFlags adds the flags shared by the tracing commands. They are bound
// to viper when the command runs so every command can use the same keys.
func addEmuFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("firmware", "f", "", "Firmware config (yaml)")
	cmd.Flags().StringP("output", "o", "", "Trace output directory")
	cmd.Flags().BoolP("compress", "z", false, "Compress traces with xz")
	cmd.Flags().Bool("strict-edges", false, "Fail a run when a recorded edge changes kind")
	cmd.Flags().Int("decode-cache", 0, "Decoded instruction cache size")
	cmd.Flags().Uint64P("max-insns", "n", 0, "Stop a run after N instructions")
	cmd.Flags().Duration("timeout", 0, "Stop a run after this much time")
	cmd.Flags().IntP("workers", "j", 0, "Number of parallel emulators (default: number of CPUs)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		for key, flag := range map[string]string{
			"emu.firmware":         "firmware",
			"trace.output":         "output",
			"trace.compress":       "compress",
			"trace.strict_edges":   "strict-edges",
			"trace.decode_cache":   "decode-cache",
			"emu.max_instructions": "max-insns",
			"emu.timeout":          "timeout",
			"emu.workers":          "workers",
		} {
			if cmd.Flags().Changed(flag) {
				viper.BindPFlag(key, cmd.Flags().Lookup(flag))
			}
		}
	}
}

// worker is one emulator with its own tracer
type worker struct {
	emu    *emu.Emulation
	tracer *trace.Tracer
	dec    *thumb.CachedDecoder
}

func newWorker(fw *emu.Firmware, conf *config.Config) (*worker, error) {
	e, err := emu.NewEmulation(fw, &emu.Config{
		MaxInstructions: conf.Emu.MaxInstructions,
		Timeout:         conf.Emu.Timeout,
		Verbose:         Verbose,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create emulation")
	}
	dec, err := thumb.NewCachedDecoder(thumb.NewDecoder(), conf.Trace.DecodeCache)
	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	tr := trace.NewTracer(e, e, dec, trace.Options{
		Output:          conf.Trace.Output,
		Compress:        conf.Trace.Compress,
		StrictEdgeKinds: conf.Trace.StrictEdges,
		ImageBase:       fw.Base,
	})
	e.SetTracer(tr)
	e.SetDecoder(dec)
	return &worker{emu: e, tracer: tr, dec: dec}, nil
}

// trace runs one input file
func (w *worker) trace(path string) (trace.StopReason, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return trace.StopOther, errors.Wrapf(err, "failed to read input %s", path)
	}
	w.tracer.SetRunLabel(filepath.Base(path))
	return w.emu.Run(input)
}

func (w *worker) Close() error {
	hits, misses := w.dec.Stats()
	log.WithFields(log.Fields{
		"runs":         w.tracer.Runs(),
		"cache_hits":   hits,
		"cache_misses": misses,
	}).Debug("worker done")
	return w.emu.Close()
}

func loadFirmware(conf *config.Config) (*emu.Firmware, error) {
	if conf.Emu.Firmware == "" {
		return nil, errors.New("no firmware config given (use --firmware or emu.firmware)")
	}
	return emu.ParseFirmware(conf.Emu.Firmware)
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <INPUT>",
	Short: "Trace one fuzz input",
	Example: heredoc.Doc(`
		# Trace one input and write the traces to ./traces
		❯ fwtrace run -f firmware.yml -o traces/ crashes/id_000001
		# Print every instruction and the machine state on a crash
		❯ fwtrace run -V -f firmware.yml crashes/id_000001`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		fw, err := loadFirmware(conf)
		if err != nil {
			return err
		}
		if dump, _ := cmd.Flags().GetBool("dump-config"); dump {
			return fw.DumpYaml()
		}

		w, err := newWorker(fw, conf)
		if err != nil {
			return err
		}
		defer w.Close()

		reason, err := w.trace(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to trace %s", args[0])
		}

		status := colors.OK().Sprint(reason)
		if reason.IsCrash() {
			status = colors.Crash().Sprint(reason)
		}
		ctx := log.WithField("reason", status)
		if conf.Trace.Output != "" {
			ctx = ctx.WithField("output", conf.Trace.Output)
		}
		if fi, err := os.Stat(args[0]); err == nil {
			ctx = ctx.WithField("input", humanize.Bytes(uint64(fi.Size())))
		}
		ctx.Info("Run finished")
		return nil
	},
}
