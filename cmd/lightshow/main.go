package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lightshow",
		Short: "Lightshow - plugin driven controller for addressable lights",
		Long: `Lightshow renders animations supplied by plugin processes onto a strip of
addressable lights, feeding them beat, spectrum and MIDI events.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to the configuration file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newPluginsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
