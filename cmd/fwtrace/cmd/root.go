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
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// Verbose enables debug logs, instruction printing and crash dumps
	Verbose bool
	// Color forces colored output on or off
	Color bool
	// AppVersion is set at build time
	AppVersion = "dev"
	// AppBuildTime is set at build time
	AppBuildTime string
)

var rootCmd = &cobra.Command{
	Use:   "fwtrace",
	Short: "Trace, triage and root-cause Cortex-M firmware fuzzing crashes",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		if cmd.Flags().Changed("color") || viper.IsSet("color") {
			force := viper.GetBool("color")
			colors.Init(&force)
		}
	},
}

// Execute runs the command line, it is called once by main
func Execute() {
	rootCmd.Version = strings.TrimSpace(AppVersion)
	if AppBuildTime != "" {
		rootCmd.Version += ", built " + strings.TrimSpace(AppBuildTime)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)
	config.SetDefaults()
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/fwtrace/config.yaml)")
	pf.BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	pf.BoolVar(&Color, "color", false, "colorize output")
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
	viper.BindPFlag("color", pf.Lookup("color"))
	viper.BindEnv("color", "CLICOLOR")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads $HOME/.config/fwtrace/config.yaml (or --config) and
// FWTRACE_* environment variables
func initConfig() {
	if Verbose {
		log.SetLevel(log.DebugLevel)
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".config", "fwtrace"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("fwtrace")
	// trace.decode_cache -> FWTRACE_TRACE_DECODE_CACHE
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "failed to read config %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}
