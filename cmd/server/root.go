package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultConfigName = "sonicsight.config.xml"

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
}

// newRootCommand builds the CLI. Running it without a subcommand serves.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sonicsight",
		Short: "Classify cat and dog sounds with a hosted model",
		Long: `SonicSight serves a small web page for uploading an audio clip, previewing it
and sending it to a hosted classifier that answers with a label, a confidence
score and a spectrogram.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(),
		"Path to the XML configuration file (created with defaults if missing)")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newClassifyCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// defaultConfigPath places the config file next to the executable.
func defaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(filepath.Dir(exePath), defaultConfigName)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("sonicsight %s (built %s)\n", Version, BuildTime)
		},
	}
}
